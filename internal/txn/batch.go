package txn

import (
	"context"
	"log/slog"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/core/failure"
)

// Sender submits one operation. *Submitter implements it.
type Sender interface {
	Send(ctx context.Context, op *domain.PendingOperation) domain.OperationResult
}

// BatchProcessor submits operations one after another.
type BatchProcessor struct {
	sender Sender
	log    *slog.Logger
}

// NewBatchProcessor creates a batch processor over sender.
func NewBatchProcessor(sender Sender) *BatchProcessor {
	return &BatchProcessor{sender: sender, log: slog.Default()}
}

// SetLogger sets the logger.
func (b *BatchProcessor) SetLogger(log *slog.Logger) {
	b.log = log
}

// Process sends every operation exactly once, in order. A failure is recorded
// and the batch moves on. Gas is summed over successful operations only.
func (b *BatchProcessor) Process(ctx context.Context, ops []*domain.PendingOperation) domain.BatchResult {
	result := domain.BatchResult{
		Successful: make([]domain.OperationResult, 0, len(ops)),
	}

	for i, op := range ops {
		if op == nil {
			rec := failure.Newf(failure.KindValidation, failure.Context{Operation: "batch"}, "operation %d is nil", i)
			result.Failed = append(result.Failed, domain.BatchFailure{
				Result: domain.OperationResult{ErrorKind: rec.Kind, Message: rec.Error()},
			})
			continue
		}

		res := b.sender.Send(ctx, op)
		if res.Success {
			result.Successful = append(result.Successful, res)
			result.TotalGasUsed += res.GasUsedOrZero()
			continue
		}
		result.Failed = append(result.Failed, domain.BatchFailure{Operation: op, Result: res})
	}

	b.log.Info("Batch processed",
		"total", len(ops),
		"successful", len(result.Successful),
		"failed", len(result.Failed),
		"gas_used", result.TotalGasUsed,
	)
	return result
}
