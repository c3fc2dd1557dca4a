// Package resilience guards calls to the ledger and other degraded
// dependencies.
//
// This package contains:
//   - Registry / Breaker: per-operation-key circuit breakers (CLOSED, OPEN, HALF_OPEN)
//   - RateLimiter: fixed-window call budgets per resource key, behind a WindowStore
//   - Coordinator: bounded exponential-backoff retry that runs through the breakers
//
// Breaker and window state is shared and mutable per key. Each breaker guards
// its state with its own mutex and re-reads state after the wrapped call
// returns, so a transition never relies on a read taken before the call.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/nftrelay/internal/core/failure"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds breaker thresholds.
type BreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	ResetTimeout      time.Duration `yaml:"reset_timeout"`
	HalfOpenSuccesses int           `yaml:"half_open_successes"`
}

// DefaultBreakerConfig provides sensible defaults.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold:  5,
	ResetTimeout:      60 * time.Second,
	HalfOpenSuccesses: 3,
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultBreakerConfig.ResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultBreakerConfig.HalfOpenSuccesses
	}
	return c
}

// CircuitState is a snapshot of one breaker.
type CircuitState struct {
	State             State
	FailureCount      int
	LastFailure       time.Time
	HalfOpenSuccesses int
}

// Breaker guards a single operation key.
type Breaker struct {
	key string
	cfg BreakerConfig
	now func() time.Time
	log *slog.Logger

	mu    sync.Mutex
	state CircuitState
}

func newBreaker(key string, cfg BreakerConfig, now func() time.Time, log *slog.Logger) *Breaker {
	metrics.CircuitState.WithLabelValues(key).Set(float64(StateClosed))
	return &Breaker{key: key, cfg: cfg, now: now, log: log}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.State != StateOpen {
		return nil
	}

	now := b.now()
	if now.Sub(b.state.LastFailure) > b.cfg.ResetTimeout {
		b.transition(StateHalfOpen)
		b.state.HalfOpenSuccesses = 0
		return nil
	}

	metrics.CircuitRejectionsTotal.WithLabelValues(b.key).Inc()
	retryIn := b.cfg.ResetTimeout - now.Sub(b.state.LastFailure)
	return failure.Newf(failure.KindServiceUnavailable, failure.Context{
		Operation: b.key,
		Timestamp: now,
	}, "circuit breaker open, retry in %s", retryIn.Round(time.Second))
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !countsAsFailure(err) {
		b.onSuccess()
		return
	}
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	switch b.state.State {
	case StateClosed:
		b.state.FailureCount = 0
	case StateHalfOpen:
		b.state.HalfOpenSuccesses++
		if b.state.HalfOpenSuccesses >= b.cfg.HalfOpenSuccesses {
			b.transition(StateClosed)
			b.state.FailureCount = 0
			b.state.HalfOpenSuccesses = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.state.LastFailure = b.now()
	switch b.state.State {
	case StateClosed:
		b.state.FailureCount++
		if b.state.FailureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.state.HalfOpenSuccesses = 0
		b.transition(StateOpen)
	case StateOpen:
		// a probe that raced with the OPEN transition
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state.State
	if from == to {
		return
	}
	b.state.State = to
	metrics.CircuitState.WithLabelValues(b.key).Set(float64(to))
	b.log.Info("Circuit breaker transition",
		"key", b.key,
		"from", from.String(),
		"to", to.String(),
		"failures", b.state.FailureCount,
	)
}

// countsAsFailure excludes errors that prove the dependency answered: the
// caller sent something the ledger rejected.
func countsAsFailure(err error) bool {
	switch failure.Classify(err) {
	case failure.KindValidation,
		failure.KindUnauthorized,
		failure.KindContractRevert,
		failure.KindInsufficientFunds:
		return false
	}
	return true
}

// Breakers is the breaker registry seen by call sites. The in-process Registry
// is the only implementation today; a shared store can satisfy the same
// contract for multi-process deployments.
type Breakers interface {
	Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error
	State(key string) CircuitState
	Snapshot() map[string]CircuitState
}

// Registry lazily creates one Breaker per key.
type Registry struct {
	cfg BreakerConfig
	now func() time.Time
	log *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		log:      slog.Default(),
		breakers: make(map[string]*Breaker),
	}
}

// SetClock overrides the time source for breakers created afterwards.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetLogger sets the logger for breakers created afterwards.
func (r *Registry) SetLogger(log *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = newBreaker(key, r.cfg, r.now, r.log)
		r.breakers[key] = b
	}
	return b
}

// Execute runs fn through the breaker for key.
func (r *Registry) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return r.Get(key).Execute(ctx, fn)
}

// State returns the snapshot for key. Unknown keys report CLOSED.
func (r *Registry) State(key string) CircuitState {
	r.mu.Lock()
	b, ok := r.breakers[key]
	r.mu.Unlock()
	if !ok {
		return CircuitState{State: StateClosed}
	}
	return b.Snapshot()
}

// Snapshot returns every known breaker state.
func (r *Registry) Snapshot() map[string]CircuitState {
	r.mu.Lock()
	breakers := make(map[string]*Breaker, len(r.breakers))
	for k, b := range r.breakers {
		breakers[k] = b
	}
	r.mu.Unlock()

	out := make(map[string]CircuitState, len(breakers))
	for k, b := range breakers {
		out[k] = b.Snapshot()
	}
	return out
}
