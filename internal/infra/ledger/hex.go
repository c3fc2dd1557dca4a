package ledger

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// isNull reports a JSON null result, which nodes use for "not found".
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeUint64(raw json.RawMessage) (uint64, error) {
	var v hexutil.Uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func decodeBig(raw json.RawMessage) (*big.Int, error) {
	var v hexutil.Big
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v.ToInt(), nil
}

type rpcBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
	BaseFee    *hexutil.Big   `json:"baseFeePerGas"`
}

func (b rpcBlock) toBlock() *Block {
	block := &Block{
		Number:     uint64(b.Number),
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  uint64(b.Timestamp),
	}
	if b.BaseFee != nil {
		block.BaseFee = b.BaseFee.ToInt()
	}
	return block
}

type rpcReceipt struct {
	TxHash            common.Hash    `json:"transactionHash"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	BlockHash         common.Hash    `json:"blockHash"`
	Status            hexutil.Uint64 `json:"status"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	Logs              []types.Log    `json:"logs"`
}

func (r rpcReceipt) toReceipt() *Receipt {
	receipt := &Receipt{
		TxHash:      r.TxHash,
		BlockNumber: uint64(r.BlockNumber),
		BlockHash:   r.BlockHash,
		Status:      uint64(r.Status),
		GasUsed:     uint64(r.GasUsed),
		Logs:        r.Logs,
	}
	if r.EffectiveGasPrice != nil {
		receipt.EffectiveGasPrice = r.EffectiveGasPrice.ToInt()
	}
	return receipt
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
}

func (t rpcTransaction) toTxInfo() *TxInfo {
	info := &TxInfo{
		Hash:  t.Hash,
		From:  t.From,
		To:    t.To,
		Nonce: uint64(t.Nonce),
	}
	if t.BlockNumber != nil {
		n := uint64(*t.BlockNumber)
		info.BlockNumber = &n
	}
	return info
}
