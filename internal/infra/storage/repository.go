package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/nftrelay/internal/core/domain"
)

var (
	// ErrCursorNotFound is returned when a cursor doesn't exist
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrNotFound is returned when a journal record doesn't exist
	ErrNotFound = errors.New("record not found")
)

// CursorRepository handles sync cursor storage operations
type CursorRepository interface {
	// Get retrieves the cursor by key
	Get(ctx context.Context, key string) (*domain.SyncCursor, error)

	// Save saves/updates the cursor
	Save(ctx context.Context, cursor *domain.SyncCursor) error

	// UpdateBlock moves the cursor to a new block (atomic operation)
	UpdateBlock(ctx context.Context, key string, blockNumber uint64, blockHash string) error

	// UpdateState updates cursor state
	UpdateState(ctx context.Context, key string, state domain.SyncState) error
}

// TxRepository is the transaction journal
type TxRepository interface {
	// Save inserts or updates the record for an operation
	Save(ctx context.Context, rec *domain.TxRecord) error

	// GetByOperationID retrieves the latest record for an operation
	GetByOperationID(ctx context.Context, operationID string) (*domain.TxRecord, error)

	// GetByHash retrieves a record by transaction hash
	GetByHash(ctx context.Context, txHash string) (*domain.TxRecord, error)

	// ListRecent returns the newest records first
	ListRecent(ctx context.Context, limit int) ([]*domain.TxRecord, error)

	// DeleteOlderThan removes settled records last updated before the cutoff
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
