package eventsync

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// RunOnce performs one polling pass. Large gaps are processed in
// MaxBlockRange chunks and the cursor advances after each chunk.
func (s *Synchronizer) RunOnce(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire sync lease: %w", err)
		}
		if !ok {
			s.logger.Debug("Sync lease held elsewhere, skipping pass")
			return nil
		}
	}

	if err := s.pass(ctx); err != nil {
		metrics.SyncPassFailuresTotal.Inc()
		return err
	}
	return nil
}

func (s *Synchronizer) pass(ctx context.Context) error {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read head: %w", err)
	}
	metrics.ChainHeadBlock.Set(float64(head))

	cur, err := s.cursors.Get(ctx, s.cfg.CursorKey)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if head <= cur.LastProcessedBlock {
		return nil
	}

	s.checkReorg(ctx, cur)

	queries := s.trackedQueries()
	for from := cur.LastProcessedBlock + 1; from <= head; {
		to := min(head, from+s.cfg.MaxBlockRange-1)

		events, err := s.collect(ctx, queries, from, to)
		if err != nil {
			return fmt.Errorf("collect [%d, %d]: %w", from, to, err)
		}

		blocks, err := s.blocks(ctx, events, to)
		if err != nil {
			return err
		}
		last, ok := blocks[to]
		if !ok {
			return fmt.Errorf("block %d not available", to)
		}
		for i := range events {
			if b, ok := blocks[events[i].BlockNumber]; ok {
				events[i].Timestamp = time.Unix(int64(b.Timestamp), 0)
			}
		}

		s.dispatch(ctx, events)

		if err := s.cursors.Advance(ctx, s.cfg.CursorKey, to, last.Hash.Hex()); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
		metrics.SyncCursorBlock.Set(float64(to))

		s.logger.Debug("Processed block range",
			"from", from,
			"to", to,
			"events", len(events),
		)
		from = to + 1
	}
	return nil
}

// checkReorg compares the stored hash of the last processed block with the
// ledger. A mismatch is reported only; events already dispatched stay
// dispatched and the cursor is not rewound.
func (s *Synchronizer) checkReorg(ctx context.Context, cur *domain.SyncCursor) {
	if cur.LastBlockHash == "" {
		return
	}
	b, err := s.client.BlockByNumber(ctx, cur.LastProcessedBlock)
	if err != nil || b == nil {
		return
	}
	if b.Hash.Hex() != cur.LastBlockHash {
		metrics.ReorgsDetectedTotal.Inc()
		s.logger.Warn("Reorg detected below sync cursor",
			"block", cur.LastProcessedBlock,
			"stored_hash", cur.LastBlockHash,
			"ledger_hash", b.Hash.Hex(),
		)
	}
}

// contractQuery is one log query per contract covering all tracked events.
type contractQuery struct {
	contract *ledger.Contract
	events   map[common.Hash]string
}

func (s *Synchronizer) trackedQueries() []contractQuery {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	byContract := make(map[string]*contractQuery)
	for k := range s.tracked {
		c, err := s.contracts.Get(k.contract)
		if err != nil {
			continue
		}
		id, err := c.EventID(k.event)
		if err != nil {
			continue
		}
		q, ok := byContract[k.contract]
		if !ok {
			q = &contractQuery{contract: c, events: make(map[common.Hash]string)}
			byContract[k.contract] = q
		}
		q.events[id] = k.event
	}

	out := make([]contractQuery, 0, len(byContract))
	for _, q := range byContract {
		out = append(out, *q)
	}
	return out
}

// collect runs the contract queries concurrently and returns the decoded
// events sorted by block then log index.
func (s *Synchronizer) collect(ctx context.Context, queries []contractQuery, from, to uint64) ([]domain.ProcessedEvent, error) {
	var (
		mu     sync.Mutex
		events []domain.ProcessedEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			found, err := s.query(gctx, q, from, to)
			if err != nil {
				return err
			}
			mu.Lock()
			events = append(events, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(events, func(a, b domain.ProcessedEvent) int {
		return cmp.Or(
			cmp.Compare(a.BlockNumber, b.BlockNumber),
			cmp.Compare(a.LogIndex, b.LogIndex),
		)
	})
	return events, nil
}

func (s *Synchronizer) query(ctx context.Context, q contractQuery, from, to uint64) ([]domain.ProcessedEvent, error) {
	topics := make([]common.Hash, 0, len(q.events))
	for id := range q.events {
		topics = append(topics, id)
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{q.contract.Address},
		Topics:    [][]common.Hash{topics},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs for %s: %w", q.contract.Key, err)
	}

	out := make([]domain.ProcessedEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed || len(l.Topics) == 0 {
			continue
		}
		name, ok := q.events[l.Topics[0]]
		if !ok {
			continue
		}
		args, err := q.contract.DecodeLog(name, l)
		if err != nil {
			s.logger.Warn("Skipping undecodable log",
				"contract", q.contract.Key,
				"event", name,
				"tx", l.TxHash.Hex(),
				"error", err,
			)
			continue
		}
		out = append(out, domain.ProcessedEvent{
			ContractKey:     q.contract.Key,
			EventName:       name,
			BlockNumber:     l.BlockNumber,
			BlockHash:       l.BlockHash.Hex(),
			TransactionHash: l.TxHash.Hex(),
			LogIndex:        l.Index,
			Args:            args,
		})
	}
	return out, nil
}

// blocks fetches the headers needed for event timestamps plus the range end.
func (s *Synchronizer) blocks(ctx context.Context, events []domain.ProcessedEvent, to uint64) (map[uint64]*ledger.Block, error) {
	numbers := []uint64{to}
	for _, e := range events {
		numbers = append(numbers, e.BlockNumber)
	}
	slices.Sort(numbers)
	numbers = slices.Compact(numbers)

	blocks, err := s.client.BlocksByNumber(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("fetch blocks: %w", err)
	}
	return blocks, nil
}

type dedupKey struct {
	contract string
	event    string
	block    uint64
	tx       string
	index    uint
}

// dispatch delivers events in order. Callback errors are logged and do not
// fail the pass.
func (s *Synchronizer) dispatch(ctx context.Context, events []domain.ProcessedEvent) {
	if len(events) == 0 {
		return
	}
	subs := s.snapshot()
	seen := make(map[dedupKey]struct{}, len(events))

	for _, e := range events {
		k := dedupKey{e.ContractKey, e.EventName, e.BlockNumber, e.TransactionHash, e.LogIndex}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		for _, sub := range subs {
			if !sub.Matches(e) {
				continue
			}
			s.deliver(ctx, sub, e)
		}
		metrics.EventsDispatchedTotal.WithLabelValues(e.ContractKey, e.EventName).Inc()
	}
}

func (s *Synchronizer) deliver(ctx context.Context, sub *domain.EventSubscription, e domain.ProcessedEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Event callback panicked",
				"subscription", sub.ID,
				"event", e.EventName,
				"panic", r,
			)
		}
	}()
	if err := sub.Callback(ctx, e); err != nil {
		s.logger.Warn("Event callback failed",
			"subscription", sub.ID,
			"contract", e.ContractKey,
			"event", e.EventName,
			"block", e.BlockNumber,
			"tx", e.TransactionHash,
			"error", err,
		)
	}
}
