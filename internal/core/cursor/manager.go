// Package cursor tracks how far the event synchronizer has processed.
//
// The cursor remembers the last fully dispatched block and its hash. It only
// moves forward: Advance to a lower block is rejected, and re-advancing to the
// current block with the same hash is a no-op. The stored hash lets the next
// pass notice that the ledger replaced a block it already handled.
//
//	m := cursor.NewManager(repo)
//	c, _ := m.Initialize(ctx, "grading", 1000)
//	m.SetState(ctx, "grading", cursor.StateMonitoring, "start")
//	m.Advance(ctx, "grading", 1010, "0xabc...")
package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/infra/storage"
)

var (
	// ErrCursorNotFound is returned when a cursor doesn't exist.
	ErrCursorNotFound = storage.ErrCursorNotFound

	// ErrCursorRegression is returned when Advance would move the cursor back.
	ErrCursorRegression = errors.New("cursor cannot move backwards")

	// ErrHashMismatch is returned when the current block is re-advanced with a different hash.
	ErrHashMismatch = errors.New("block hash mismatch at cursor")
)

// Manager wraps a CursorRepository with forward-only and state machine checks.
type Manager struct {
	repo          storage.CursorRepository
	mu            sync.RWMutex
	stateCallback func(string, Transition)
}

// NewManager creates a new cursor manager with the given repository.
func NewManager(repo storage.CursorRepository) *Manager {
	return &Manager{repo: repo}
}

// Get retrieves the cursor stored under key.
func (m *Manager) Get(ctx context.Context, key string) (*domain.SyncCursor, error) {
	return m.repo.Get(ctx, key)
}

// Initialize creates a cursor whose last processed block is startBlock.
func (m *Manager) Initialize(ctx context.Context, key string, startBlock uint64) (*domain.SyncCursor, error) {
	c := &domain.SyncCursor{
		Key:                key,
		LastProcessedBlock: startBlock,
		State:              StateIdle,
	}
	if err := m.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cursor: %w", err)
	}
	return c, nil
}

// Load returns the stored cursor, creating it at startBlock when missing.
func (m *Manager) Load(ctx context.Context, key string, startBlock uint64) (*domain.SyncCursor, error) {
	c, err := m.repo.Get(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, storage.ErrCursorNotFound) {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return m.Initialize(ctx, key, startBlock)
}

// Advance records blockNumber as fully processed.
func (m *Manager) Advance(ctx context.Context, key string, blockNumber uint64, blockHash string) error {
	c, err := m.repo.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}

	switch {
	case blockNumber < c.LastProcessedBlock:
		return fmt.Errorf("%w: at %d, got %d", ErrCursorRegression, c.LastProcessedBlock, blockNumber)
	case blockNumber == c.LastProcessedBlock:
		if blockHash == "" || blockHash == c.LastBlockHash {
			return nil
		}
		if c.LastBlockHash != "" {
			return fmt.Errorf("%w: block %d has %s, got %s",
				ErrHashMismatch, blockNumber, c.LastBlockHash, blockHash)
		}
		// first pass after Initialize only knew the number
		return m.repo.UpdateBlock(ctx, key, blockNumber, blockHash)
	}

	if err := m.repo.UpdateBlock(ctx, key, blockNumber, blockHash); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	return nil
}

// SetState transitions the cursor to a new state.
func (m *Manager) SetState(ctx context.Context, key string, newState State, reason string) error {
	c, err := m.repo.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}
	if c.State == newState {
		return nil
	}
	if !CanTransition(c.State, newState) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, c.State, newState)
	}

	t := NewTransition(c.State, newState, reason)
	if err := m.repo.UpdateState(ctx, key, newState); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}

	m.mu.RLock()
	cb := m.stateCallback
	m.mu.RUnlock()
	if cb != nil {
		cb(key, t)
	}
	return nil
}

// SetStateChangeCallback registers a callback for state changes.
func (m *Manager) SetStateChangeCallback(fn func(key string, t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCallback = fn
}
