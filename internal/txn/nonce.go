package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftrelay/internal/infra/ledger"
)

// NonceAllocator hands out transaction nonces per account. Allocation is
// serialised so concurrent submissions never share a nonce.
type NonceAllocator struct {
	mu     sync.Mutex
	client ledger.Client
	next   map[common.Address]uint64
	log    *slog.Logger
}

// NewNonceAllocator creates an allocator backed by the node's pending count.
func NewNonceAllocator(client ledger.Client) *NonceAllocator {
	return &NonceAllocator{
		client: client,
		next:   make(map[common.Address]uint64),
		log:    slog.Default(),
	}
}

// SetLogger sets the logger.
func (n *NonceAllocator) SetLogger(log *slog.Logger) {
	n.log = log
}

// Next returns the next unused nonce for account. The pending count is
// re-read on every call so transactions sent by other processes are
// respected; the local counter covers allocations the node has not seen yet.
func (n *NonceAllocator) Next(ctx context.Context, account common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	local, known := n.next[account]

	pending, err := n.client.PendingNonceAt(ctx, account)
	if err != nil {
		if !known {
			return 0, fmt.Errorf("read pending nonce: %w", err)
		}
		n.log.Warn("Pending nonce unavailable, using local counter",
			"account", account.Hex(),
			"nonce", local,
			"error", err,
		)
		pending = local
	}

	nonce := max(pending, local)
	n.next[account] = nonce + 1
	return nonce, nil
}

// Release gives back a nonce whose transaction never reached the node. Only
// the most recently issued nonce can be returned; an earlier one would reuse
// a value already handed to a later submission, so it is left as a gap that
// the node's pending count fills once the later transaction lands.
func (n *NonceAllocator) Release(account common.Address, nonce uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if next, ok := n.next[account]; ok && next == nonce+1 {
		n.next[account] = nonce
		return true
	}
	n.log.Warn("Nonce not released, later nonces already issued",
		"account", account.Hex(),
		"nonce", nonce,
	)
	return false
}
