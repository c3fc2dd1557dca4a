package eventsync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftrelay/internal/core/domain"
)

// HistoricalEvents returns eventName logs of contractKey in [from, to], or up
// to the current head when to is nil. The query is bounded by
// HistoricalTimeout; any failure is logged and yields an empty result.
func (s *Synchronizer) HistoricalEvents(
	ctx context.Context,
	contractKey, eventName string,
	from uint64,
	to *uint64,
) []domain.ProcessedEvent {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HistoricalTimeout)
	defer cancel()

	log := s.logger.With("contract", contractKey, "event", eventName, "from", from)

	c, err := s.contracts.Get(contractKey)
	if err != nil {
		log.Warn("Historical query for unknown contract", "error", err)
		return nil
	}
	id, err := c.EventID(eventName)
	if err != nil {
		log.Warn("Historical query for unknown event", "error", err)
		return nil
	}

	end := uint64(0)
	if to != nil {
		end = *to
	} else {
		head, err := s.client.BlockNumber(ctx)
		if err != nil {
			log.Warn("Historical query could not read head", "error", err)
			return nil
		}
		end = head
	}
	if end < from {
		return nil
	}

	q := contractQuery{contract: c, events: map[common.Hash]string{id: eventName}}
	var out []domain.ProcessedEvent
	for start := from; start <= end; {
		stop := min(end, start+s.cfg.MaxBlockRange-1)
		events, err := s.collect(ctx, []contractQuery{q}, start, stop)
		if err != nil {
			log.Warn("Historical query failed", "to", end, "error", err)
			return nil
		}
		out = append(out, events...)
		start = stop + 1
	}

	s.stampTimes(ctx, out)
	return out
}

// stampTimes fills Timestamp from block headers; failures leave it zero.
func (s *Synchronizer) stampTimes(ctx context.Context, events []domain.ProcessedEvent) {
	if len(events) == 0 {
		return
	}
	blocks, err := s.blocks(ctx, events, events[0].BlockNumber)
	if err != nil {
		s.logger.Debug("Could not fetch block times", "error", err)
		return
	}
	for i := range events {
		if b, ok := blocks[events[i].BlockNumber]; ok {
			events[i].Timestamp = time.Unix(int64(b.Timestamp), 0)
		}
	}
}
