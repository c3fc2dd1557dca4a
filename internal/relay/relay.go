// Package relay is the surface business logic and the CLI talk to. It ties
// contract lookup, submission, batching, event monitoring and rate limiting
// together behind one Service.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/core/failure"
	"github.com/vietddude/nftrelay/internal/eventsync"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
	"github.com/vietddude/nftrelay/internal/infra/storage"
	"github.com/vietddude/nftrelay/internal/resilience"
	"github.com/vietddude/nftrelay/internal/txn"
)

// Deps are the components a Service is assembled from. Journal may be nil.
type Deps struct {
	Contracts *ledger.Registry
	Submitter *txn.Submitter
	Batch     *txn.BatchProcessor
	Sync      *eventsync.Synchronizer
	Limiter   *resilience.RateLimiter
	Journal   storage.TxRepository
}

// Service is the relay facade.
type Service struct {
	contracts *ledger.Registry
	submitter *txn.Submitter
	batch     *txn.BatchProcessor
	sync      *eventsync.Synchronizer
	limiter   *resilience.RateLimiter
	journal   storage.TxRepository
	log       *slog.Logger
}

// New creates a Service. A missing batch processor or limiter is created
// from the submitter or process memory.
func New(d Deps) *Service {
	s := &Service{
		contracts: d.Contracts,
		submitter: d.Submitter,
		batch:     d.Batch,
		sync:      d.Sync,
		limiter:   d.Limiter,
		journal:   d.Journal,
		log:       slog.Default(),
	}
	if s.batch == nil {
		s.batch = txn.NewBatchProcessor(d.Submitter)
	}
	if s.limiter == nil {
		s.limiter = resilience.NewRateLimiter(nil)
	}
	return s
}

// SetLogger sets the logger.
func (s *Service) SetLogger(log *slog.Logger) {
	s.log = log
}

// Operation builds a PendingOperation calling function on the contract
// registered as contractKey. value may be nil.
func (s *Service) Operation(contractKey, function string, value *big.Int, args ...any) (*domain.PendingOperation, error) {
	fctx := failure.Context{Operation: "buildOperation", Contract: contractKey, Function: function}

	c, err := s.contracts.Get(contractKey)
	if err != nil {
		return nil, failure.New(failure.KindValidation, err.Error(), fctx)
	}
	data, err := c.Pack(function, args...)
	if err != nil {
		return nil, failure.New(failure.KindValidation, err.Error(), fctx)
	}
	return &domain.PendingOperation{
		ContractKey: contractKey,
		Function:    function,
		Target:      c.Address,
		Data:        data,
		Value:       value,
	}, nil
}

// Submit sends op and waits for its outcome.
func (s *Service) Submit(ctx context.Context, op *domain.PendingOperation) domain.OperationResult {
	if op == nil {
		return nilOperation("submit")
	}
	return s.submitter.Send(ctx, op)
}

// RetrySubmit sends op with fee bumping. maxRetries <= 0 uses the configured default.
func (s *Service) RetrySubmit(ctx context.Context, op *domain.PendingOperation, maxRetries int) domain.OperationResult {
	if op == nil {
		return nilOperation("retrySubmit")
	}
	return s.submitter.Retry(ctx, op, maxRetries)
}

// Estimate returns the gas limit and fees op would be sent with.
func (s *Service) Estimate(ctx context.Context, op *domain.PendingOperation) (domain.GasEstimation, error) {
	if op == nil {
		return domain.GasEstimation{}, failure.New(failure.KindValidation, "operation is nil",
			failure.Context{Operation: "estimate"})
	}
	return s.submitter.Gas().Estimate(ctx, s.submitter.Address(), op), nil
}

// Batch submits ops strictly in order.
func (s *Service) Batch(ctx context.Context, ops []*domain.PendingOperation) domain.BatchResult {
	return s.batch.Process(ctx, ops)
}

// Subscribe registers callback for eventName on contractKey.
func (s *Service) Subscribe(
	contractKey, eventName string,
	callback domain.EventCallback,
	filter domain.EventFilter,
) (string, error) {
	id, err := s.sync.Subscribe(contractKey, eventName, callback, filter)
	if err != nil {
		return "", failure.New(failure.KindValidation, err.Error(), failure.Context{
			Operation: "subscribe",
			Contract:  contractKey,
			Function:  eventName,
		})
	}
	return id, nil
}

// Unsubscribe removes a subscription and reports whether it existed.
func (s *Service) Unsubscribe(id string) bool {
	return s.sync.Unsubscribe(id)
}

// UnsubscribeAll removes every subscription.
func (s *Service) UnsubscribeAll() {
	s.sync.UnsubscribeAll()
}

// Subscriptions returns the number of active subscriptions.
func (s *Service) Subscriptions() int {
	return s.sync.Subscriptions()
}

// HistoricalEvents queries a closed block range; to == nil means the current head.
func (s *Service) HistoricalEvents(
	ctx context.Context,
	contractKey, eventName string,
	from uint64,
	to *uint64,
) []domain.ProcessedEvent {
	return s.sync.HistoricalEvents(ctx, contractKey, eventName, from, to)
}

// StartMonitoring starts the event synchronizer.
func (s *Service) StartMonitoring(ctx context.Context) error {
	return s.sync.Start(ctx)
}

// StopMonitoring stops the event synchronizer. It is idempotent.
func (s *Service) StopMonitoring(ctx context.Context) error {
	return s.sync.Stop(ctx)
}

// Monitoring reports whether the synchronizer is running.
func (s *Service) Monitoring() bool {
	return s.sync.Running()
}

// CheckRateLimit counts one call against key and returns a RATE_LIMITED
// record when more than limit calls land within window.
func (s *Service) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	return s.limiter.CheckRateLimit(ctx, key, limit, window)
}

// Transaction returns the journal record of an operation.
func (s *Service) Transaction(ctx context.Context, operationID string) (*domain.TxRecord, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("transaction journal not configured")
	}
	return s.journal.GetByOperationID(ctx, operationID)
}

// RecentTransactions returns the newest journal records first.
func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]*domain.TxRecord, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("transaction journal not configured")
	}
	return s.journal.ListRecent(ctx, limit)
}

func nilOperation(op string) domain.OperationResult {
	return domain.OperationResult{
		Success:   false,
		ErrorKind: failure.KindValidation,
		Message:   fmt.Sprintf("%s: operation is nil", op),
	}
}
