// Package txn turns pending contract operations into signed, broadcast and
// confirmed ledger transactions.
package txn

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// GasConfig tunes fee and limit selection.
type GasConfig struct {
	FloorGasPriceGwei  uint64 `yaml:"floor_gas_price_gwei"`
	DefaultGasLimit    uint64 `yaml:"default_gas_limit"`
	PriceBufferPercent uint64 `yaml:"price_buffer_percent"`
	LimitBufferPercent uint64 `yaml:"limit_buffer_percent"`
}

// DefaultGasConfig provides sensible defaults.
var DefaultGasConfig = GasConfig{
	FloorGasPriceGwei:  20,
	DefaultGasLimit:    500_000,
	PriceBufferPercent: 10,
	LimitBufferPercent: 20,
}

func (c GasConfig) withDefaults() GasConfig {
	if c.FloorGasPriceGwei == 0 {
		c.FloorGasPriceGwei = DefaultGasConfig.FloorGasPriceGwei
	}
	if c.DefaultGasLimit == 0 {
		c.DefaultGasLimit = DefaultGasConfig.DefaultGasLimit
	}
	if c.PriceBufferPercent == 0 {
		c.PriceBufferPercent = DefaultGasConfig.PriceBufferPercent
	}
	if c.LimitBufferPercent == 0 {
		c.LimitBufferPercent = DefaultGasConfig.LimitBufferPercent
	}
	return c
}

// FloorGasPrice returns the fallback price in wei.
func (c GasConfig) FloorGasPrice() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(c.FloorGasPriceGwei), big.NewInt(params.GWei))
}

// GasEstimator picks fees and gas limits, falling back to configured
// constants when the node cannot answer.
type GasEstimator struct {
	client ledger.Client
	cfg    GasConfig
	log    *slog.Logger
}

// NewGasEstimator creates an estimator.
func NewGasEstimator(client ledger.Client, cfg GasConfig) *GasEstimator {
	return &GasEstimator{
		client: client,
		cfg:    cfg.withDefaults(),
		log:    slog.Default(),
	}
}

// SetLogger sets the logger.
func (g *GasEstimator) SetLogger(log *slog.Logger) {
	g.log = log
}

// Config returns the effective configuration.
func (g *GasEstimator) Config() GasConfig {
	return g.cfg
}

// OptimalGasPrice returns EIP-1559 fees when the node reports them, the
// legacy price plus the buffer otherwise, and the floor price when fee data
// cannot be read at all.
func (g *GasEstimator) OptimalGasPrice(ctx context.Context) ledger.FeeData {
	fee, err := g.client.FeeData(ctx)
	if err != nil {
		metrics.GasFallbacksTotal.WithLabelValues("price").Inc()
		g.log.Warn("Fee data unavailable, using floor gas price",
			"floor_gwei", g.cfg.FloorGasPriceGwei,
			"error", err,
		)
		return ledger.FeeData{GasPrice: g.cfg.FloorGasPrice()}
	}

	if fee.SupportsDynamicFee() {
		return ledger.FeeData{
			MaxFeePerGas:         fee.MaxFeePerGas,
			MaxPriorityFeePerGas: fee.MaxPriorityFeePerGas,
		}
	}

	if fee.GasPrice == nil || fee.GasPrice.Sign() == 0 {
		metrics.GasFallbacksTotal.WithLabelValues("price").Inc()
		return ledger.FeeData{GasPrice: g.cfg.FloorGasPrice()}
	}
	return ledger.FeeData{GasPrice: addPercent(fee.GasPrice, g.cfg.PriceBufferPercent)}
}

// EstimateGas asks the node for a limit and adds the buffer. On failure the
// default limit is returned.
func (g *GasEstimator) EstimateGas(ctx context.Context, from common.Address, op *domain.PendingOperation) uint64 {
	msg := ethereum.CallMsg{
		From:  from,
		To:    &op.Target,
		Data:  op.Data,
		Value: op.Value,
	}

	estimate, err := g.client.EstimateGas(ctx, msg)
	if err != nil || estimate == 0 {
		metrics.GasFallbacksTotal.WithLabelValues("limit").Inc()
		g.log.Warn("Gas estimation failed, using default limit",
			"operation_id", op.ID,
			"function", op.Function,
			"default_limit", g.cfg.DefaultGasLimit,
			"error", err,
		)
		return g.cfg.DefaultGasLimit
	}
	return estimate * (100 + g.cfg.LimitBufferPercent) / 100
}

// Estimate combines the gas limit and fee choice and prices the worst case.
func (g *GasEstimator) Estimate(ctx context.Context, from common.Address, op *domain.PendingOperation) domain.GasEstimation {
	limit := g.EstimateGas(ctx, from, op)
	fee := g.OptimalGasPrice(ctx)

	est := domain.GasEstimation{
		GasLimit:             limit,
		GasPrice:             fee.GasPrice,
		MaxFeePerGas:         fee.MaxFeePerGas,
		MaxPriorityFeePerGas: fee.MaxPriorityFeePerGas,
	}
	price := fee.GasPrice
	if fee.SupportsDynamicFee() {
		price = fee.MaxFeePerGas
	}
	est.EstimatedCost = new(big.Int).Mul(price, new(big.Int).SetUint64(limit))
	return est
}

func addPercent(v *big.Int, percent uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(100+percent))
	return out.Div(out, big.NewInt(100))
}
