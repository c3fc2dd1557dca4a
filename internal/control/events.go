package control

import (
	"context"
	"log/slog"

	"github.com/vietddude/nftrelay/internal/core/domain"
)

// LogEvent returns a callback that writes every delivered event to log.
func LogEvent(log *slog.Logger) domain.EventCallback {
	return func(ctx context.Context, ev domain.ProcessedEvent) error {
		log.Info("[EVENT]",
			"contract", ev.ContractKey,
			"event", ev.EventName,
			"block", ev.BlockNumber,
			"tx", ev.TransactionHash,
			"log_index", ev.LogIndex,
			"args", ev.Args,
		)
		return nil
	}
}
