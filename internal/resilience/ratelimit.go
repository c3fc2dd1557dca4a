package resilience

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vietddude/nftrelay/internal/core/failure"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// Window is one fixed rate window.
type Window struct {
	Count   int
	ResetAt time.Time
}

// WindowStore increments the counter for key, starting a new window when the
// current one has expired. Implementations must make Incr atomic per key.
type WindowStore interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)
}

// MemoryWindowStore keeps windows in process memory.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*Window
	hits    uint64
}

// NewMemoryWindowStore creates an in-process window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*Window)}
}

// Incr implements WindowStore.
func (s *MemoryWindowStore) Incr(
	_ context.Context,
	key string,
	window time.Duration,
	now time.Time,
) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.ResetAt) {
		w = &Window{Count: 1, ResetAt: now.Add(window)}
		s.windows[key] = w
	} else {
		w.Count++
	}

	// evict expired windows now and then
	s.hits++
	if s.hits%512 == 0 {
		for k, v := range s.windows {
			if now.After(v.ResetAt) {
				delete(s.windows, k)
			}
		}
	}

	return *w, nil
}

// RateLimiter applies fixed-window budgets per key. Boundary bursts of up to
// twice the limit are possible across adjacent windows.
type RateLimiter struct {
	store WindowStore
	now   func() time.Time
	log   *slog.Logger
}

// NewRateLimiter creates a limiter over store. A nil store uses process memory.
func NewRateLimiter(store WindowStore) *RateLimiter {
	if store == nil {
		store = NewMemoryWindowStore()
	}
	return &RateLimiter{
		store: store,
		now:   time.Now,
		log:   slog.Default(),
	}
}

// SetClock overrides the time source.
func (l *RateLimiter) SetClock(now func() time.Time) {
	l.now = now
}

// SetLogger sets the logger.
func (l *RateLimiter) SetLogger(log *slog.Logger) {
	l.log = log
}

// CheckRateLimit counts one call against key and returns a RATE_LIMITED
// record once more than limit calls land in the current window.
func (l *RateLimiter) CheckRateLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) error {
	if limit <= 0 || window <= 0 {
		return failure.Newf(failure.KindValidation, failure.Context{Operation: "checkRateLimit"},
			"invalid rate limit %d per %s", limit, window)
	}

	now := l.now()
	w, err := l.store.Incr(ctx, key, window, now)
	if err != nil {
		// fail open when the shared store is unreachable
		l.log.Warn("Rate limit store unavailable, allowing call", "key", key, "error", err)
		return nil
	}

	if w.Count <= limit {
		return nil
	}

	metrics.RateLimitRejectionsTotal.WithLabelValues(key).Inc()
	retryAfter := int(math.Ceil(w.ResetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	rec := failure.Newf(failure.KindRateLimited, failure.Context{
		Operation:  "checkRateLimit",
		Parameters: map[string]any{"key": key, "limit": limit, "window": window.String()},
		Timestamp:  now,
	}, "rate limit exceeded for %s: %d/%d", key, w.Count, limit)
	rec.RetryAfterSeconds = retryAfter
	return rec
}
