// Package eventsync polls the ledger for contract events and replays them to
// subscribers.
//
// Each pass reads the chain head, queries every tracked (contract, event)
// pair over [cursor+1, head], dispatches the decoded events in block/log
// order and only then moves the cursor. A failed pass leaves the cursor in
// place so the same range is retried on the next tick: delivery is
// at-most-once within a pass and at-least-once across failures.
package eventsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/nftrelay/internal/core/cursor"
	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
)

// Config controls the polling loop and historical queries.
type Config struct {
	Interval          time.Duration `yaml:"interval"`
	StartBlock        uint64        `yaml:"start_block"`
	MaxBlockRange     uint64        `yaml:"max_block_range"`
	HistoricalTimeout time.Duration `yaml:"historical_timeout"`
	CursorKey         string        `yaml:"cursor_key"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = 2000
	}
	if c.HistoricalTimeout <= 0 {
		c.HistoricalTimeout = 30 * time.Second
	}
	if c.CursorKey == "" {
		c.CursorKey = "events"
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 3 * c.Interval
	}
	return c
}

// Lease guards the polling loop when several relay instances share a cursor.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Synchronizer is the polling event monitor.
type Synchronizer struct {
	client    ledger.Client
	contracts *ledger.Registry
	cursors   *cursor.Manager
	cfg       Config
	logger    *slog.Logger
	lease     Lease

	subsMu  sync.RWMutex
	subs    map[string]*domain.EventSubscription
	tracked map[trackKey]int

	// runMu guards the running flag and the loop channels.
	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// passMu serialises passes between the loop and RunOnce callers.
	passMu sync.Mutex
}

type trackKey struct {
	contract string
	event    string
}

// New creates a synchronizer in the IDLE state.
func New(client ledger.Client, contracts *ledger.Registry, cursors *cursor.Manager, cfg Config) *Synchronizer {
	return &Synchronizer{
		client:    client,
		contracts: contracts,
		cursors:   cursors,
		cfg:       cfg.WithDefaults(),
		logger:    slog.Default(),
		subs:      make(map[string]*domain.EventSubscription),
		tracked:   make(map[trackKey]int),
	}
}

// SetLogger sets the logger.
func (s *Synchronizer) SetLogger(log *slog.Logger) {
	s.logger = log
}

// SetLease makes every pass acquire lease first; passes that lose it are skipped.
func (s *Synchronizer) SetLease(l Lease) {
	s.lease = l
}

// Config returns the effective configuration.
func (s *Synchronizer) Config() Config {
	return s.cfg
}

// Running reports whether the synchronizer is MONITORING.
func (s *Synchronizer) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Start loads or creates the cursor and begins polling. Starting a running
// synchronizer is a no-op.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	if err := s.ensureCursor(ctx); err != nil {
		return err
	}
	if err := s.cursors.SetState(ctx, s.cfg.CursorKey, cursor.StateMonitoring, "monitoring started"); err != nil {
		return err
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(context.WithoutCancel(ctx), s.stop, s.done)

	s.logger.Info("Event monitoring started",
		"cursor", s.cfg.CursorKey,
		"interval", s.cfg.Interval,
	)
	return nil
}

// Stop halts future passes and waits for an in-flight pass to finish.
// Stopping an idle synchronizer is a no-op.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.runMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.lease != nil {
		if err := s.lease.Release(ctx); err != nil {
			s.logger.Warn("Failed to release sync lease", "error", err)
		}
	}
	if err := s.cursors.SetState(ctx, s.cfg.CursorKey, cursor.StateIdle, "monitoring stopped"); err != nil {
		return err
	}
	s.logger.Info("Event monitoring stopped", "cursor", s.cfg.CursorKey)
	return nil
}

func (s *Synchronizer) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// a stop that raced the tick wins
		select {
		case <-stop:
			return
		default:
		}

		if err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("Event sync pass failed, will retry",
				"cursor", s.cfg.CursorKey,
				"error", err,
			)
		}
	}
}

// ensureCursor creates the cursor on first start: at StartBlock-1 when a start
// block is configured, else at the current head so only new events are seen.
func (s *Synchronizer) ensureCursor(ctx context.Context) error {
	_, err := s.cursors.Get(ctx, s.cfg.CursorKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, cursor.ErrCursorNotFound) {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	var start uint64
	if s.cfg.StartBlock > 0 {
		start = s.cfg.StartBlock - 1
	} else {
		head, err := s.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to read head for new cursor: %w", err)
		}
		start = head
	}

	if _, err := s.cursors.Initialize(ctx, s.cfg.CursorKey, start); err != nil {
		return err
	}
	s.logger.Info("Created sync cursor", "cursor", s.cfg.CursorKey, "block", start)
	return nil
}
