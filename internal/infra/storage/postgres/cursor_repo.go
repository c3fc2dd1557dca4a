package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Save saves a cursor to the database.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.SyncCursor) error {
	query := `
		INSERT INTO sync_cursors (cursor_key, last_processed_block, last_block_hash, state, updated_at)
		VALUES (:cursor_key, :last_processed_block, :last_block_hash, :state, NOW())
		ON CONFLICT (cursor_key) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			last_block_hash = EXCLUDED.last_block_hash,
			state = EXCLUDED.state,
			updated_at = NOW()
	`
	if _, err := r.db.NamedExecContext(ctx, query, cursor); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves a cursor by key.
func (r *CursorRepo) Get(ctx context.Context, key string) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	err := r.db.GetContext(ctx, &c, `
		SELECT cursor_key, last_processed_block, last_block_hash, state, updated_at
		FROM sync_cursors WHERE cursor_key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &c, nil
}

// UpdateBlock moves the cursor forward. The WHERE clause keeps it monotonic
// even if two writers race.
func (r *CursorRepo) UpdateBlock(ctx context.Context, key string, blockNumber uint64, blockHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_cursors
		SET last_processed_block = $2, last_block_hash = $3, updated_at = NOW()
		WHERE cursor_key = $1 AND last_processed_block <= $2
	`, key, blockNumber, blockHash)
	if err != nil {
		return fmt.Errorf("failed to update cursor block: %w", err)
	}
	return requireRow(res, storage.ErrCursorNotFound)
}

// UpdateState updates cursor state.
func (r *CursorRepo) UpdateState(ctx context.Context, key string, state domain.SyncState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_cursors SET state = $2, updated_at = NOW() WHERE cursor_key = $1
	`, key, string(state))
	if err != nil {
		return fmt.Errorf("failed to update cursor state: %w", err)
	}
	return requireRow(res, storage.ErrCursorNotFound)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
