// Package worker holds background maintenance jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/nftrelay/internal/infra/storage"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// Pruner deletes settled transaction journal records past their retention.
type Pruner struct {
	retention time.Duration
	txRepo    storage.TxRepository
	now       func() time.Time
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker. retention <= 0 disables it.
func NewPruner(retention time.Duration, txRepo storage.TxRepository) *Pruner {
	return &Pruner{
		retention: retention,
		txRepo:    txRepo,
		now:       time.Now,
		log:       slog.Default(),
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return
	}

	// check at 10% of retention, between 1 minute and 1 hour
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one deletion pass and returns how many records were removed.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.txRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune transaction journal", "error", err)
		return 0
	}
	if n > 0 {
		metrics.JournalPrunedTotal.Add(float64(n))
		p.log.Info("Pruned transaction journal", "deleted", n, "before", cutoff.Format(time.RFC3339))
	}
	return n
}
