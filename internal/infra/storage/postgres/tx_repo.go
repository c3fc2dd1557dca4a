package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/storage"
)

// TxRepo implements storage.TxRepository using PostgreSQL.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a new PostgreSQL transaction journal.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

const txColumns = `operation_id, tx_hash, from_address, to_address, nonce, contract_key,
	function_name, status, block_number, gas_used, error_kind, message, created_at, updated_at`

// Save upserts the record for an operation, keeping the first hash seen.
func (r *TxRepo) Save(ctx context.Context, rec *domain.TxRecord) error {
	query := `
		INSERT INTO tx_journal (` + txColumns + `)
		VALUES (:operation_id, :tx_hash, :from_address, :to_address, :nonce, :contract_key,
			:function_name, :status, :block_number, :gas_used, :error_kind, :message, NOW(), NOW())
		ON CONFLICT (operation_id) DO UPDATE SET
			tx_hash = CASE WHEN EXCLUDED.tx_hash = '' THEN tx_journal.tx_hash ELSE EXCLUDED.tx_hash END,
			nonce = EXCLUDED.nonce,
			status = EXCLUDED.status,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			error_kind = EXCLUDED.error_kind,
			message = EXCLUDED.message,
			updated_at = NOW()
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to save transaction record: %w", err)
	}
	return nil
}

func (r *TxRepo) GetByOperationID(ctx context.Context, operationID string) (*domain.TxRecord, error) {
	return r.getOne(ctx, `SELECT `+txColumns+` FROM tx_journal WHERE operation_id = $1`, operationID)
}

func (r *TxRepo) GetByHash(ctx context.Context, txHash string) (*domain.TxRecord, error) {
	return r.getOne(ctx, `SELECT `+txColumns+` FROM tx_journal WHERE tx_hash = $1 LIMIT 1`, txHash)
}

func (r *TxRepo) getOne(ctx context.Context, query string, arg any) (*domain.TxRecord, error) {
	var rec domain.TxRecord
	err := r.db.GetContext(ctx, &rec, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction record: %w", err)
	}
	return &rec, nil
}

func (r *TxRepo) ListRecent(ctx context.Context, limit int) ([]*domain.TxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []*domain.TxRecord
	err := r.db.SelectContext(ctx, &recs,
		`SELECT `+txColumns+` FROM tx_journal ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction records: %w", err)
	}
	return recs, nil
}

func (r *TxRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tx_journal WHERE status <> $1 AND updated_at < $2`,
		domain.TxStatusPending, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transaction records: %w", err)
	}
	return res.RowsAffected()
}
