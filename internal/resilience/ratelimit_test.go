package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/nftrelay/internal/core/failure"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(nil)
	l.SetClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckRateLimit(ctx, "grade:0xabc", 2, time.Second); err != nil {
			t.Fatalf("call %d should pass: %v", i+1, err)
		}
	}

	err := l.CheckRateLimit(ctx, "grade:0xabc", 2, time.Second)
	var rec *failure.Record
	if !errors.As(err, &rec) {
		t.Fatalf("expected rate limit record, got %v", err)
	}
	if rec.Kind != failure.KindRateLimited || !rec.Retryable {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.RetryAfterSeconds <= 0 {
		t.Errorf("expected retryAfterSeconds > 0, got %d", rec.RetryAfterSeconds)
	}

	clock.Advance(1001 * time.Millisecond)
	if err := l.CheckRateLimit(ctx, "grade:0xabc", 2, time.Second); err != nil {
		t.Fatalf("call after window should pass: %v", err)
	}
	if err := l.CheckRateLimit(ctx, "grade:0xabc", 2, time.Second); err != nil {
		t.Fatalf("window should have been reset: %v", err)
	}
}

func TestRateLimiter_ResetIsStrictlyAfter(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(nil)
	l.SetClock(clock.Now)
	ctx := context.Background()

	_ = l.CheckRateLimit(ctx, "k", 1, time.Second)
	clock.Advance(time.Second)
	if err := l.CheckRateLimit(ctx, "k", 1, time.Second); err == nil {
		t.Errorf("now == resetAt is still inside the window")
	}
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	l := NewRateLimiter(nil)
	ctx := context.Background()

	_ = l.CheckRateLimit(ctx, "a", 1, time.Minute)
	if err := l.CheckRateLimit(ctx, "b", 1, time.Minute); err != nil {
		t.Errorf("b should have its own window: %v", err)
	}
}

type brokenStore struct{}

func (brokenStore) Incr(context.Context, string, time.Duration, time.Time) (Window, error) {
	return Window{}, errors.New("redis: connection refused")
}

func TestRateLimiter_StoreFailureFailsOpen(t *testing.T) {
	l := NewRateLimiter(brokenStore{})
	if err := l.CheckRateLimit(context.Background(), "k", 1, time.Second); err != nil {
		t.Errorf("expected fail-open, got %v", err)
	}
}

func TestRateLimiter_InvalidArguments(t *testing.T) {
	l := NewRateLimiter(nil)
	err := l.CheckRateLimit(context.Background(), "k", 0, time.Second)
	if failure.Classify(err) != failure.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}
