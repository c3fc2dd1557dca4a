package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/nftrelay/internal/infra/rpc/provider"
)

// DefaultPriorityFee is offered when the node does not answer
// eth_maxPriorityFeePerGas.
var DefaultPriorityFee = big.NewInt(1_000_000_000)

// RPCClient implements Client on top of a JSON-RPC caller.
type RPCClient struct {
	caller Caller
}

// NewRPCClient wraps caller, usually an *rpc.Client with failover.
func NewRPCClient(caller Caller) *RPCClient {
	return &RPCClient{caller: caller}
}

var _ Client = (*RPCClient)(nil)

func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	raw, err := c.caller.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId failed: %w", err)
	}
	return decodeBig(raw)
}

// FeeData reads the legacy gas price and, when the latest block carries a
// base fee, the EIP-1559 fee cap as 2*baseFee + tip.
func (c *RPCClient) FeeData(ctx context.Context) (FeeData, error) {
	raw, err := c.caller.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return FeeData{}, fmt.Errorf("eth_gasPrice failed: %w", err)
	}
	gasPrice, err := decodeBig(raw)
	if err != nil {
		return FeeData{}, fmt.Errorf("parse gas price: %w", err)
	}

	fee := FeeData{GasPrice: gasPrice}

	head, err := c.latestBlock(ctx)
	if err != nil || head == nil || head.BaseFee == nil {
		return fee, nil
	}

	tip := new(big.Int).Set(DefaultPriorityFee)
	if raw, err := c.caller.Call(ctx, "eth_maxPriorityFeePerGas", nil); err == nil {
		if v, err := decodeBig(raw); err == nil {
			tip = v
		}
	}

	fee.MaxPriorityFeePerGas = tip
	fee.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return fee, nil
}

func (c *RPCClient) latestBlock(ctx context.Context) (*Block, error) {
	raw, err := c.caller.Call(ctx, "eth_getBlockByNumber", []any{"latest", false})
	if err != nil {
		return nil, err
	}
	return parseBlock(raw)
}

func (c *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	raw, err := c.caller.Call(ctx, "eth_estimateGas", []any{toCallArg(msg)})
	if err != nil {
		return 0, fmt.Errorf("eth_estimateGas failed: %w", err)
	}
	return decodeUint64(raw)
}

func (c *RPCClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	raw, err := c.caller.Call(ctx, "eth_getTransactionCount", []any{account, "pending"})
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount failed: %w", err)
	}
	return decodeUint64(raw)
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.caller.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return decodeUint64(raw)
}

func (c *RPCClient) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	raw, err := c.caller.Call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(number), false})
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	return parseBlock(raw)
}

func (c *RPCClient) BlocksByNumber(ctx context.Context, numbers []uint64) (map[uint64]*Block, error) {
	if len(numbers) == 0 {
		return map[uint64]*Block{}, nil
	}

	requests := make([]provider.BatchRequest, len(numbers))
	for i, n := range numbers {
		requests[i] = provider.BatchRequest{
			Method: "eth_getBlockByNumber",
			Params: []any{hexutil.EncodeUint64(n), false},
		}
	}

	responses, err := c.caller.BatchCall(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("batch eth_getBlockByNumber failed: %w", err)
	}

	blocks := make(map[uint64]*Block, len(numbers))
	for i, resp := range responses {
		if i >= len(numbers) || resp.Error != nil {
			continue
		}
		block, err := parseBlock(resp.Result)
		if err != nil || block == nil {
			continue
		}
		blocks[numbers[i]] = block
	}
	return blocks, nil
}

func parseBlock(raw json.RawMessage) (*Block, error) {
	if isNull(raw) {
		return nil, nil
	}
	var b rpcBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("invalid block format: %w", err)
	}
	return b.toBlock(), nil
}

func (c *RPCClient) TransactionByHash(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	raw, err := c.caller.Call(ctx, "eth_getTransactionByHash", []any{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash failed: %w", err)
	}
	if isNull(raw) {
		return nil, nil
	}
	var tx rpcTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("invalid transaction format: %w", err)
	}
	return tx.toTxInfo(), nil
}

func (c *RPCClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	raw, err := c.caller.Call(ctx, "eth_getTransactionReceipt", []any{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	if isNull(raw) {
		return nil, nil
	}
	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("invalid receipt format: %w", err)
	}
	return r.toReceipt(), nil
}

func (c *RPCClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode transaction: %w", err)
	}
	raw, err := c.caller.Call(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(data)})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction failed: %w", err)
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("invalid transaction hash: %w", err)
	}
	return hash, nil
}

func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	arg, err := toFilterArg(q)
	if err != nil {
		return nil, err
	}
	raw, err := c.caller.Call(ctx, "eth_getLogs", []any{arg})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}
	if isNull(raw) {
		return nil, nil
	}
	var logs []types.Log
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("invalid logs format: %w", err)
	}
	return logs, nil
}

func toCallArg(msg ethereum.CallMsg) map[string]any {
	arg := map[string]any{
		"from": msg.From,
	}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	if msg.GasFeeCap != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(msg.GasFeeCap)
	}
	if msg.GasTipCap != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(msg.GasTipCap)
	}
	return arg
}

func toFilterArg(q ethereum.FilterQuery) (map[string]any, error) {
	arg := map[string]any{
		"address": q.Addresses,
		"topics":  q.Topics,
	}
	if q.BlockHash != nil {
		if q.FromBlock != nil || q.ToBlock != nil {
			return nil, fmt.Errorf("cannot specify both BlockHash and FromBlock/ToBlock")
		}
		arg["blockHash"] = *q.BlockHash
		return arg, nil
	}
	if q.FromBlock == nil {
		arg["fromBlock"] = "0x0"
	} else {
		arg["fromBlock"] = (*hexutil.Big)(q.FromBlock)
	}
	if q.ToBlock == nil {
		arg["toBlock"] = "latest"
	} else {
		arg["toBlock"] = (*hexutil.Big)(q.ToBlock)
	}
	return arg, nil
}
