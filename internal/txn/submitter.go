package txn

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/core/failure"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
	"github.com/vietddude/nftrelay/internal/metrics"
	"github.com/vietddude/nftrelay/internal/resilience"
)

// SubmitterConfig tunes confirmation waiting.
type SubmitterConfig struct {
	Confirmations       uint64        `yaml:"confirmations"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	MaxRetries          int           `yaml:"max_retries"`
	// ChainID skips the eth_chainId lookup when set.
	ChainID int64 `yaml:"-"`
}

// DefaultSubmitterConfig provides sensible defaults.
var DefaultSubmitterConfig = SubmitterConfig{
	Confirmations:       1,
	ConfirmationTimeout: 2 * time.Minute,
	PollInterval:        2 * time.Second,
	MaxRetries:          3,
}

func (c SubmitterConfig) withDefaults() SubmitterConfig {
	if c.Confirmations == 0 {
		c.Confirmations = DefaultSubmitterConfig.Confirmations
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = DefaultSubmitterConfig.ConfirmationTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultSubmitterConfig.PollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultSubmitterConfig.MaxRetries
	}
	return c
}

// Journal records submission outcomes.
type Journal interface {
	Save(ctx context.Context, rec *domain.TxRecord) error
}

const (
	opSend    = "sendTransaction"
	opChainID = "getChainId"

	msgNotConfirmed = "transaction not confirmed within timeout"

	errNonceTooLow = "nonce too low"
	errUnderpriced = "replacement transaction underpriced"

	// minimum price increase, in percent, for a node to accept a replacement
	replacementBump = 10
)

// Submitter signs, broadcasts and confirms pending operations.
type Submitter struct {
	client  ledger.Client
	signer  Signer
	gas     *GasEstimator
	nonces  *NonceAllocator
	retry   *resilience.Coordinator
	journal Journal
	cfg     SubmitterConfig
	log     *slog.Logger

	chainMu sync.Mutex
	chainID *big.Int

	pendingMu sync.Mutex
	pending   map[common.Hash]string
}

// NewSubmitter wires a submitter. Nonces and gas are filled in when the
// operation leaves them empty.
func NewSubmitter(
	client ledger.Client,
	signer Signer,
	gas *GasEstimator,
	nonces *NonceAllocator,
	retry *resilience.Coordinator,
	cfg SubmitterConfig,
) *Submitter {
	s := &Submitter{
		client:  client,
		signer:  signer,
		gas:     gas,
		nonces:  nonces,
		retry:   retry,
		cfg:     cfg.withDefaults(),
		log:     slog.Default(),
		pending: make(map[common.Hash]string),
	}
	if cfg.ChainID > 0 {
		s.chainID = big.NewInt(cfg.ChainID)
	}
	return s
}

// SetJournal sets where outcomes are recorded.
func (s *Submitter) SetJournal(j Journal) {
	s.journal = j
}

// SetLogger sets the logger.
func (s *Submitter) SetLogger(log *slog.Logger) {
	s.log = log
}

// Address returns the account transactions are sent from.
func (s *Submitter) Address() common.Address {
	return s.signer.Address()
}

// Gas returns the estimator used to fill fees.
func (s *Submitter) Gas() *GasEstimator {
	return s.gas
}

// Config returns the effective configuration.
func (s *Submitter) Config() SubmitterConfig {
	return s.cfg
}

// Pending returns the hashes broadcast but not yet resolved.
func (s *Submitter) Pending() []common.Hash {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := make([]common.Hash, 0, len(s.pending))
	for h := range s.pending {
		out = append(out, h)
	}
	return out
}

// Send fills nonce and gas, signs, broadcasts with retry and waits for
// inclusion. Faults are reported in the result, never as an error.
func (s *Submitter) Send(ctx context.Context, op *domain.PendingOperation) domain.OperationResult {
	op = op.Clone()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	allocated := op.Nonce == nil
	res, _ := s.send(ctx, op)
	if !res.Success && allocated && op.Nonce != nil && !reachedLedger(res) {
		s.nonces.Release(s.signer.Address(), *op.Nonce)
	}
	return res
}

// Retry resubmits op up to maxRetries times with one nonce, raising the
// offered price by attempt*10% each time, and never by less than 10% over the
// previous attempt, so a stuck transaction can be replaced. It stops early on
// failures a retry cannot fix.
func (s *Submitter) Retry(ctx context.Context, op *domain.PendingOperation, maxRetries int) domain.OperationResult {
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}
	base := op.Clone()
	if base.ID == "" {
		base.ID = uuid.NewString()
	}

	account := s.signer.Address()
	allocated := false
	if base.Nonce == nil {
		nonce, err := s.nonces.Next(ctx, account)
		if err != nil {
			return s.failed(ctx, base, "", failure.From(err, s.opContext(base, 1)))
		}
		base.Nonce = &nonce
		allocated = true
	}
	if base.GasLimit == 0 {
		base.GasLimit = s.gas.EstimateGas(ctx, account, base)
	}
	if base.GasPrice == nil && !base.UsesDynamicFee() {
		fee := s.gas.OptimalGasPrice(ctx)
		base.GasPrice = fee.GasPrice
		base.MaxFeePerGas = fee.MaxFeePerGas
		base.MaxPriorityFeePerGas = fee.MaxPriorityFeePerGas
	}

	var (
		res  domain.OperationResult
		sent []common.Hash
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		next := bumpFees(base, attempt)
		next.Attempt = attempt

		var hash common.Hash
		res, hash = s.send(ctx, next)
		if res.Success {
			return res
		}
		// an earlier broadcast with the same nonce may have landed meanwhile
		if res.BlockNumber == 0 {
			if mined, ok := s.findMined(ctx, base, sent); ok {
				return mined
			}
		}
		if hash != (common.Hash{}) {
			sent = append(sent, hash)
		}

		if !failure.IsRetryable(res.ErrorKind) || nonceConsumed(res) || attempt == maxRetries {
			break
		}
		s.log.Warn("Transaction attempt failed, resubmitting with higher fee",
			"operation_id", base.ID,
			"nonce", *base.Nonce,
			"attempt", attempt,
			"kind", res.ErrorKind,
			"message", res.Message,
		)
		if err := s.retry.Wait(ctx, attempt); err != nil {
			break
		}
	}

	if allocated && s.allDropped(ctx, sent) {
		s.nonces.Release(account, *base.Nonce)
	}
	return res
}

// bumpFees returns a copy of op with every price raised for the given attempt.
func bumpFees(op *domain.PendingOperation, attempt int) *domain.PendingOperation {
	out := op.Clone()
	out.GasPrice = bumpPrice(out.GasPrice, attempt)
	out.MaxFeePerGas = bumpPrice(out.MaxFeePerGas, attempt)
	out.MaxPriorityFeePerGas = bumpPrice(out.MaxPriorityFeePerGas, attempt)
	return out
}

// bumpPrice raises base by attempt*10%. Nodes only accept a replacement that
// pays at least 10% more than the transaction it replaces, so from the second
// attempt on the linear step is lifted to 10% over the previous attempt.
func bumpPrice(base *big.Int, attempt int) *big.Int {
	if base == nil {
		return nil
	}
	price := new(big.Int).Set(base)
	for i := 1; i <= attempt; i++ {
		linear := addPercent(base, uint64(i)*10)
		floor := addPercent(price, replacementBump)
		if linear.Cmp(floor) >= 0 {
			price = linear
		} else {
			price = floor
		}
	}
	return price
}

// allDropped reports whether none of hashes is known to the node, meaning the
// nonce they carried was never consumed. Lookup errors count as known.
func (s *Submitter) allDropped(ctx context.Context, hashes []common.Hash) bool {
	for _, h := range hashes {
		info, err := s.client.TransactionByHash(ctx, h)
		if err != nil || info != nil {
			return false
		}
		s.log.Debug("Earlier broadcast dropped by the node", "tx", h.Hex())
	}
	return true
}

func (s *Submitter) findMined(ctx context.Context, op *domain.PendingOperation, hashes []common.Hash) (domain.OperationResult, bool) {
	for _, h := range hashes {
		receipt, err := s.client.TransactionReceipt(ctx, h)
		if err != nil || receipt == nil {
			continue
		}
		return s.resolved(ctx, op, h, receipt), true
	}
	return domain.OperationResult{}, false
}

// send runs one submission of a fully or partially prepared operation and
// returns the broadcast hash when there was one.
func (s *Submitter) send(ctx context.Context, op *domain.PendingOperation) (domain.OperationResult, common.Hash) {
	account := s.signer.Address()
	attempt := max(op.Attempt, 1)
	opCtx := s.opContext(op, attempt)

	if op.GasLimit == 0 {
		op.GasLimit = s.gas.EstimateGas(ctx, account, op)
	}
	if op.GasPrice == nil && !op.UsesDynamicFee() {
		fee := s.gas.OptimalGasPrice(ctx)
		op.GasPrice = fee.GasPrice
		op.MaxFeePerGas = fee.MaxFeePerGas
		op.MaxPriorityFeePerGas = fee.MaxPriorityFeePerGas
	}
	if op.Nonce == nil {
		nonce, err := s.nonces.Next(ctx, account)
		if err != nil {
			return s.failed(ctx, op, "", failure.From(err, opCtx)), common.Hash{}
		}
		op.Nonce = &nonce
	}

	chainID, err := s.resolveChainID(ctx)
	if err != nil {
		return s.failed(ctx, op, "", failure.From(err, opCtx)), common.Hash{}
	}

	tx, err := s.signer.Sign(op, chainID)
	if err != nil {
		return s.failed(ctx, op, "", failure.From(err, opCtx)), common.Hash{}
	}

	hash, err := resilience.Do(ctx, s.retry, opCtx, func(ctx context.Context) (common.Hash, error) {
		return s.broadcast(ctx, tx)
	})
	if err != nil {
		return s.failed(ctx, op, "", failure.From(err, opCtx)), common.Hash{}
	}

	s.track(hash, op.ID)
	defer s.untrack(hash)

	s.log.Info("Transaction broadcast",
		"operation_id", op.ID,
		"tx", hash.Hex(),
		"nonce", *op.Nonce,
		"function", op.Function,
		"attempt", attempt,
	)
	s.record(ctx, op, hash, domain.TxRecord{Status: domain.TxStatusPending})

	receipt, err := s.WaitForTransaction(ctx, hash, s.cfg.Confirmations)
	if err != nil {
		return s.failed(ctx, op, hash.Hex(), failure.From(err, opCtx)), hash
	}
	if receipt == nil {
		rec := failure.New(failure.KindNetwork, msgNotConfirmed, opCtx)
		return s.failed(ctx, op, hash.Hex(), rec), hash
	}
	return s.resolved(ctx, op, hash, receipt), hash
}

// broadcast sends a signed transaction. A node that already holds the exact
// transaction is treated as success so retried broadcasts are idempotent.
func (s *Submitter) broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	hash, err := s.client.SendRawTransaction(ctx, tx)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "already known") {
			return tx.Hash(), nil
		}
		// rebroadcasting the same signed bytes cannot change these answers
		if strings.Contains(msg, errNonceTooLow) || strings.Contains(msg, errUnderpriced) {
			rec := failure.New(failure.KindRPC, err.Error(), failure.Context{Operation: opSend})
			rec.Retryable = false
			rec.Cause = err
			return common.Hash{}, rec
		}
		return common.Hash{}, err
	}
	return hash, nil
}

func (s *Submitter) resolveChainID(ctx context.Context) (*big.Int, error) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := resilience.Do(ctx, s.retry, failure.Context{Operation: opChainID}, s.client.ChainID)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}

// WaitForTransaction polls until hash has the requested number of
// confirmations. It returns nil, nil when the confirmation timeout passes
// first and an error only when ctx itself is cancelled.
func (s *Submitter) WaitForTransaction(ctx context.Context, hash common.Hash, confirmations uint64) (*ledger.Receipt, error) {
	confirmations = max(confirmations, 1)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(waitCtx, hash)
		if err != nil {
			s.log.Debug("Receipt poll failed", "tx", hash.Hex(), "error", err)
		} else if receipt != nil {
			if confirmations == 1 {
				return receipt, nil
			}
			head, err := s.client.BlockNumber(waitCtx)
			if err == nil && head >= receipt.BlockNumber && head-receipt.BlockNumber+1 >= confirmations {
				return receipt, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.log.Warn("Transaction not confirmed in time",
				"tx", hash.Hex(),
				"timeout", s.cfg.ConfirmationTimeout,
			)
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (s *Submitter) resolved(ctx context.Context, op *domain.PendingOperation, hash common.Hash, receipt *ledger.Receipt) domain.OperationResult {
	gasUsed := receipt.GasUsed
	res := domain.OperationResult{
		OperationID:     op.ID,
		TransactionHash: hash.Hex(),
		BlockNumber:     receipt.BlockNumber,
		GasUsed:         &gasUsed,
	}

	status := domain.TxStatusConfirmed
	if receipt.Succeeded() {
		res.Success = true
		metrics.GasUsedTotal.Add(float64(gasUsed))
		s.log.Info("Transaction confirmed",
			"operation_id", op.ID,
			"tx", hash.Hex(),
			"block", receipt.BlockNumber,
			"gas_used", gasUsed,
		)
	} else {
		status = domain.TxStatusReverted
		res.ErrorKind = failure.KindContractRevert
		res.Message = "transaction reverted"
		s.log.Error("Transaction reverted",
			"operation_id", op.ID,
			"tx", hash.Hex(),
			"block", receipt.BlockNumber,
		)
	}

	metrics.TransactionsTotal.WithLabelValues(string(status)).Inc()
	s.record(ctx, op, hash, domain.TxRecord{
		Status:      status,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     gasUsed,
		ErrorKind:   string(res.ErrorKind),
		Message:     res.Message,
	})
	return res
}

func (s *Submitter) failed(ctx context.Context, op *domain.PendingOperation, hash string, rec *failure.Record) domain.OperationResult {
	res := domain.OperationResult{
		OperationID:     op.ID,
		TransactionHash: hash,
		ErrorKind:       rec.Kind,
		Message:         rec.Error(),
	}

	status := domain.TxStatusFailed
	if hash != "" && rec.Message == msgNotConfirmed {
		status = domain.TxStatusPending
	}
	metrics.TransactionsTotal.WithLabelValues(string(status)).Inc()

	s.log.Error("Transaction failed",
		"operation_id", op.ID,
		"function", op.Function,
		"kind", rec.Kind,
		"error", rec.Error(),
	)
	s.record(ctx, op, common.HexToHash(hash), domain.TxRecord{
		Status:    status,
		ErrorKind: string(rec.Kind),
		Message:   rec.Error(),
	})
	return res
}

func (s *Submitter) record(ctx context.Context, op *domain.PendingOperation, hash common.Hash, rec domain.TxRecord) {
	if s.journal == nil {
		return
	}
	rec.OperationID = op.ID
	if hash != (common.Hash{}) {
		rec.TxHash = hash.Hex()
	}
	rec.From = s.signer.Address().Hex()
	rec.To = op.Target.Hex()
	if op.Nonce != nil {
		rec.Nonce = *op.Nonce
	}
	rec.ContractKey = op.ContractKey
	rec.Function = op.Function
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.journal.Save(context.WithoutCancel(ctx), &rec); err != nil {
		s.log.Warn("Failed to journal transaction", "operation_id", op.ID, "error", err)
	}
}

func (s *Submitter) track(hash common.Hash, opID string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[hash] = opID
	metrics.PendingTransactions.Set(float64(len(s.pending)))
}

func (s *Submitter) untrack(hash common.Hash) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, hash)
	metrics.PendingTransactions.Set(float64(len(s.pending)))
}

func (s *Submitter) opContext(op *domain.PendingOperation, attempt int) failure.Context {
	return failure.Context{
		Operation: opSend,
		Contract:  op.ContractKey,
		Function:  op.Function,
		Timestamp: time.Now(),
		Attempt:   attempt,
		Parameters: map[string]any{
			"operation_id": op.ID,
		},
	}
}

// reachedLedger reports whether a failed result was still broadcast.
func reachedLedger(res domain.OperationResult) bool {
	return res.TransactionHash != ""
}

// nonceConsumed reports whether the node said another transaction already
// used the nonce, which no fee bump can fix.
func nonceConsumed(res domain.OperationResult) bool {
	return strings.Contains(strings.ToLower(res.Message), errNonceTooLow)
}
