package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/nftrelay/internal/infra/storage"
	"github.com/vietddude/nftrelay/internal/infra/storage/memory"
	"github.com/vietddude/nftrelay/internal/infra/storage/postgres"
)

// Storage bundles the repositories the relay persists to. DB is nil in
// memory mode.
type Storage struct {
	Cursors storage.CursorRepository
	Journal storage.TxRepository
	DB      *postgres.DB
}

// OpenStorage connects to PostgreSQL and applies migrations when a URL is
// configured, and falls back to process memory otherwise.
func OpenStorage(ctx context.Context, cfg postgres.Config) (*Storage, error) {
	if cfg.URL == "" {
		store := memory.NewMemoryStorage()
		slog.Info("Using Memory storage")
		return &Storage{
			Cursors: memory.NewCursorRepo(store),
			Journal: memory.NewTxRepo(store),
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("Using PostgreSQL storage")
	return &Storage{
		Cursors: postgres.NewCursorRepo(db),
		Journal: postgres.NewTxRepo(db),
		DB:      db,
	}, nil
}

// Close releases the database connection, if any.
func (s *Storage) Close() {
	if s.DB == nil {
		return
	}
	if err := s.DB.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
