// Package ledger is the typed view of the EVM JSON-RPC surface used by the
// relay: fee data, gas estimation, nonces, blocks, receipts, raw
// transaction broadcast and log queries.
package ledger

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/nftrelay/internal/infra/rpc/provider"
)

// Client is the ledger surface consumed by the submitter and the event
// synchronizer.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	FeeData(ctx context.Context) (FeeData, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	// BlockByNumber returns nil, nil for a block the node does not have yet.
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	// BlocksByNumber fetches several blocks in one batch; missing ones are omitted.
	BlocksByNumber(ctx context.Context, numbers []uint64) (map[uint64]*Block, error)
	// TransactionByHash returns nil, nil for an unknown hash.
	TransactionByHash(ctx context.Context, hash common.Hash) (*TxInfo, error)
	// TransactionReceipt returns nil, nil while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Caller is the JSON-RPC transport underneath RPCClient.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
	BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error)
}

// FeeData is the node's current fee market. MaxFeePerGas and
// MaxPriorityFeePerGas are nil on chains without EIP-1559.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// SupportsDynamicFee reports whether EIP-1559 fields are populated.
func (f FeeData) SupportsDynamicFee() bool {
	return f.MaxFeePerGas != nil && f.MaxPriorityFeePerGas != nil
}

// Block is the header subset the relay needs.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
	BaseFee    *big.Int
}

// Receipt is the inclusion record of a transaction.
type Receipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	BlockHash         common.Hash
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Logs              []types.Log
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// TxInfo describes a transaction known to the node.
type TxInfo struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Nonce       uint64
	BlockNumber *uint64
}

// Pending reports whether the transaction is not yet in a block.
func (t *TxInfo) Pending() bool {
	return t.BlockNumber == nil
}
