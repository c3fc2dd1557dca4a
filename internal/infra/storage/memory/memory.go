package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/storage"
)

type MemoryStorage struct {
	cursors map[string]*domain.SyncCursor
	txs     map[string]*domain.TxRecord
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cursors: make(map[string]*domain.SyncCursor),
		txs:     make(map[string]*domain.TxRecord),
	}
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, key string) (*domain.SyncCursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cursors[key]
	if !ok {
		return nil, storage.ErrCursorNotFound
	}
	out := *c
	return &out, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.SyncCursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *cursor
	c.UpdatedAt = time.Now()
	r.store.cursors[cursor.Key] = &c
	return nil
}

func (r *CursorRepo) UpdateBlock(ctx context.Context, key string, blockNumber uint64, blockHash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.cursors[key]
	if !ok {
		return storage.ErrCursorNotFound
	}
	c.LastProcessedBlock = blockNumber
	c.LastBlockHash = blockHash
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CursorRepo) UpdateState(ctx context.Context, key string, state domain.SyncState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.cursors[key]
	if !ok {
		return storage.ErrCursorNotFound
	}
	c.State = state
	c.UpdatedAt = time.Now()
	return nil
}

// -----------------------------------------------------------------------------
// Transaction Journal
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) Save(ctx context.Context, rec *domain.TxRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *rec
	if prev, ok := r.store.txs[rec.OperationID]; ok {
		c.CreatedAt = prev.CreatedAt
		if c.TxHash == "" {
			c.TxHash = prev.TxHash
		}
	}
	r.store.txs[rec.OperationID] = &c
	return nil
}

func (r *TxRepo) GetByOperationID(ctx context.Context, operationID string) (*domain.TxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.txs[operationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (r *TxRepo) GetByHash(ctx context.Context, txHash string) (*domain.TxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, rec := range r.store.txs {
		if rec.TxHash == txHash {
			out := *rec
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *TxRepo) ListRecent(ctx context.Context, limit int) ([]*domain.TxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.TxRecord, 0, len(r.store.txs))
	for _, rec := range r.store.txs {
		c := *rec
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *domain.TxRecord) int {
		return cmp.Compare(b.UpdatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TxRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, rec := range r.store.txs {
		if rec.Status != domain.TxStatusPending && rec.UpdatedAt.Before(before) {
			delete(r.store.txs, id)
			n++
		}
	}
	return n, nil
}
