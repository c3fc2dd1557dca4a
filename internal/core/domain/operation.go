package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftrelay/internal/core/failure"
)

// PendingOperation is a state-changing contract call waiting to be sent.
// Nonce and gas fields are filled by the submitter when left empty.
type PendingOperation struct {
	ID          string
	ContractKey string
	Function    string
	Target      common.Address
	Data        []byte
	Value       *big.Int

	GasLimit             uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *uint64

	Attempt int
}

// Clone returns a copy that can be mutated without touching the original.
func (op *PendingOperation) Clone() *PendingOperation {
	c := *op
	c.Data = append([]byte(nil), op.Data...)
	c.Value = cloneBig(op.Value)
	c.GasPrice = cloneBig(op.GasPrice)
	c.MaxFeePerGas = cloneBig(op.MaxFeePerGas)
	c.MaxPriorityFeePerGas = cloneBig(op.MaxPriorityFeePerGas)
	if op.Nonce != nil {
		n := *op.Nonce
		c.Nonce = &n
	}
	return &c
}

// UsesDynamicFee reports whether EIP-1559 fee fields are set.
func (op *PendingOperation) UsesDynamicFee() bool {
	return op.MaxFeePerGas != nil && op.MaxPriorityFeePerGas != nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// OperationResult is the immutable outcome of one submission.
type OperationResult struct {
	OperationID     string
	TransactionHash string
	Success         bool
	BlockNumber     uint64
	GasUsed         *uint64
	ErrorKind       failure.Kind
	Message         string
}

// GasUsedOrZero returns GasUsed, or 0 when unknown.
func (r OperationResult) GasUsedOrZero() uint64 {
	if r.GasUsed == nil {
		return 0
	}
	return *r.GasUsed
}

// GasEstimation is the fee/limit pair the submitter will offer.
type GasEstimation struct {
	GasLimit             uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	EstimatedCost        *big.Int
}

// BatchFailure pairs a failed operation with its result.
type BatchFailure struct {
	Operation *PendingOperation
	Result    OperationResult
}

// BatchResult aggregates a sequential batch.
type BatchResult struct {
	Successful   []OperationResult
	Failed       []BatchFailure
	TotalGasUsed uint64
}
