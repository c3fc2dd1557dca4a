package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/nftrelay/internal/resilience"
)

// incrWindow bumps the counter and starts the window on the first hit.
// A key that lost its TTL is given a fresh one so it cannot live forever.
var incrWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// WindowStore keeps fixed rate-limit windows in Redis so every relay
// instance draws from the same budget.
type WindowStore struct {
	client *Client
}

// NewWindowStore creates a Redis-backed window store.
func NewWindowStore(client *Client) *WindowStore {
	return &WindowStore{client: client}
}

var _ resilience.WindowStore = (*WindowStore)(nil)

// Incr counts one hit against key and returns the window it landed in.
func (s *WindowStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (resilience.Window, error) {
	res, err := incrWindow.Run(ctx, s.client.rdb,
		[]string{rateKey(s.client.prefix, key)},
		window.Milliseconds(),
	).Result()
	if err != nil {
		return resilience.Window{}, fmt.Errorf("rate window incr failed: %w", err)
	}
	return parseWindowReply(res, now)
}

func parseWindowReply(res any, now time.Time) (resilience.Window, error) {
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return resilience.Window{}, fmt.Errorf("unexpected rate window reply: %v", res)
	}
	count, ok1 := vals[0].(int64)
	ttl, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return resilience.Window{}, fmt.Errorf("unexpected rate window reply: %v", res)
	}
	return resilience.Window{
		Count:   int(count),
		ResetAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}
