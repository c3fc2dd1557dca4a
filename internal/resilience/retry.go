package resilience

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/nftrelay/internal/core/failure"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `yaml:"max_delay"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	BaseDelay:         1 * time.Second,
	BackoffMultiplier: 2.0,
	MaxDelay:          30 * time.Second,
}

// WithDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultRetryConfig.BackoffMultiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return c
}

const jitterFraction = 0.1

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Coordinator retries operations through the breaker registry.
type Coordinator struct {
	breakers Breakers
	cfg      RetryConfig
	sleep    Sleeper
	jitter   func(max time.Duration) time.Duration
	log      *slog.Logger
}

// NewCoordinator creates a retry coordinator. Breakers are keyed by the
// Operation field of the context passed to Execute.
func NewCoordinator(breakers Breakers, cfg RetryConfig) *Coordinator {
	return &Coordinator{
		breakers: breakers,
		cfg:      cfg.WithDefaults(),
		sleep:    sleepContext,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return rand.N(max)
		},
		log: slog.Default(),
	}
}

// SetSleeper overrides how the coordinator waits between attempts.
func (c *Coordinator) SetSleeper(s Sleeper) {
	c.sleep = s
}

// SetJitter overrides the jitter source.
func (c *Coordinator) SetJitter(fn func(max time.Duration) time.Duration) {
	c.jitter = fn
}

// SetLogger sets the logger.
func (c *Coordinator) SetLogger(log *slog.Logger) {
	c.log = log
}

// Config returns the default retry config.
func (c *Coordinator) Config() RetryConfig {
	return c.cfg
}

// Breakers returns the registry the coordinator runs through.
func (c *Coordinator) Breakers() Breakers {
	return c.breakers
}

// Backoff returns the delay after the given 1-based attempt.
func (c *Coordinator) Backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	d := time.Duration(delay)
	d += c.jitter(time.Duration(delay * jitterFraction))
	return min(d, cfg.MaxDelay)
}

// Wait sleeps for the backoff that follows attempt, honouring ctx.
func (c *Coordinator) Wait(ctx context.Context, attempt int) error {
	return c.sleep(ctx, c.Backoff(attempt, c.cfg))
}

// Execute runs fn with the coordinator's default config.
func (c *Coordinator) Execute(
	ctx context.Context,
	opCtx failure.Context,
	fn func(ctx context.Context) error,
) error {
	return c.ExecuteWithConfig(ctx, opCtx, c.cfg, fn)
}

// ExecuteWithConfig runs fn, retrying retryable failures with exponential
// backoff. Non-retryable failures return after the first attempt. The returned
// error is always a *failure.Record carrying the attempt count.
func (c *Coordinator) ExecuteWithConfig(
	ctx context.Context,
	opCtx failure.Context,
	cfg RetryConfig,
	fn func(ctx context.Context) error,
) error {
	cfg = cfg.WithDefaults()
	key := opCtx.Operation
	if key == "" {
		key = "default"
	}

	for attempt := 1; ; attempt++ {
		err := c.breakers.Execute(ctx, key, fn)
		if err == nil {
			if attempt > 1 {
				c.log.Debug("Operation succeeded after retry", "operation", key, "attempt", attempt)
			}
			return nil
		}

		stepCtx := opCtx
		stepCtx.Attempt = attempt
		stepCtx.Timestamp = time.Now()
		rec := failure.From(err, stepCtx)

		if !rec.Retryable {
			c.log.Debug("Non-retryable failure", "operation", key, "kind", rec.Kind, "error", err)
			return rec
		}
		if attempt >= cfg.MaxAttempts {
			c.log.Warn("Retries exhausted",
				"operation", key,
				"attempts", attempt,
				"kind", rec.Kind,
				"error", err,
			)
			return rec
		}

		delay := c.Backoff(attempt, cfg)
		metrics.RetryAttemptsTotal.WithLabelValues(key, string(rec.Kind)).Inc()
		c.log.Warn("Operation failed, retrying",
			"operation", key,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"retry_in", delay,
			"kind", rec.Kind,
			"error", err,
		)

		if err := c.sleep(ctx, delay); err != nil {
			stepCtx.Timestamp = time.Now()
			cancelled := failure.From(err, stepCtx)
			cancelled.Message = "retry aborted: " + rec.Message
			return cancelled
		}
	}
}

// Do runs fn through the coordinator and returns its value.
func Do[T any](
	ctx context.Context,
	c *Coordinator,
	opCtx failure.Context,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	err := c.Execute(ctx, opCtx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
