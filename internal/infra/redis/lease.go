package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned when the lease is held by another owner.
var ErrLeaseLost = errors.New("lease held by another owner")

// releaseIfOwner deletes the key only when it still holds our token.
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// extendIfOwner refreshes the TTL only when it still holds our token.
var extendIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Lease is a named, expiring lock. The event synchronizer uses it so only
// one relay instance polls the ledger at a time.
type Lease struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLease creates a lease handle; nothing is acquired yet.
func NewLease(client *Client, name string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    leaseKey(client.prefix, name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lease or, if we already hold it, extends it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	if ok {
		return true, nil
	}
	if err := l.Refresh(ctx); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Refresh extends the TTL of a lease we hold.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := extendIfOwner.Run(ctx, l.client.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lease refresh failed: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release gives the lease up if we still hold it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseIfOwner.Run(ctx, l.client.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lease release failed: %w", err)
	}
	return nil
}
