package cursor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/nftrelay/internal/core/domain"
)

type mockCursorRepo struct {
	mu      sync.RWMutex
	cursors map[string]*domain.SyncCursor
	saveErr error
}

func newMockCursorRepo() *mockCursorRepo {
	return &mockCursorRepo{cursors: make(map[string]*domain.SyncCursor)}
}

func (r *mockCursorRepo) Get(ctx context.Context, key string) (*domain.SyncCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cursors[key]
	if !ok {
		return nil, ErrCursorNotFound
	}
	out := *c
	return &out, nil
}

func (r *mockCursorRepo) Save(ctx context.Context, c *domain.SyncCursor) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.cursors[c.Key] = &cp
	return nil
}

func (r *mockCursorRepo) UpdateBlock(ctx context.Context, key string, block uint64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[key]
	if !ok {
		return ErrCursorNotFound
	}
	c.LastProcessedBlock = block
	c.LastBlockHash = hash
	return nil
}

func (r *mockCursorRepo) UpdateState(ctx context.Context, key string, state domain.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[key]
	if !ok {
		return ErrCursorNotFound
	}
	c.State = state
	return nil
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{"new to idle", "", StateIdle, true},
		{"new to monitoring", "", StateMonitoring, true},
		{"idle to monitoring", StateIdle, StateMonitoring, true},
		{"monitoring to idle", StateMonitoring, StateIdle, true},
		{"idle to idle", StateIdle, StateIdle, false},
		{"unknown state", State("paused"), StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}

	if !NewTransition(StateIdle, StateMonitoring, "start").IsValid() {
		t.Error("expected idle->monitoring to be valid")
	}
}

func TestManagerInitialize(t *testing.T) {
	m := NewManager(newMockCursorRepo())
	c, err := m.Initialize(context.Background(), "grading", 1000)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if c.LastProcessedBlock != 1000 || c.State != StateIdle {
		t.Errorf("unexpected cursor %+v", c)
	}
}

func TestManagerLoad(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo)
	ctx := context.Background()

	c, err := m.Load(ctx, "grading", 50)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.LastProcessedBlock != 50 {
		t.Errorf("expected new cursor at 50, got %d", c.LastProcessedBlock)
	}

	_ = m.Advance(ctx, "grading", 70, "0x70")
	c, err = m.Load(ctx, "grading", 50)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.LastProcessedBlock != 70 {
		t.Errorf("expected stored cursor at 70, got %d", c.LastProcessedBlock)
	}

	repo.saveErr = errors.New("disk full")
	if _, err := m.Load(ctx, "other", 1); err == nil {
		t.Error("expected save error")
	}
}

func TestManagerAdvance(t *testing.T) {
	m := NewManager(newMockCursorRepo())
	ctx := context.Background()
	_, _ = m.Initialize(ctx, "grading", 100)

	if err := m.Advance(ctx, "grading", 110, "0xaaa"); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	c, _ := m.Get(ctx, "grading")
	if c.LastProcessedBlock != 110 || c.LastBlockHash != "0xaaa" {
		t.Errorf("unexpected cursor %+v", c)
	}

	// same block, same hash
	if err := m.Advance(ctx, "grading", 110, "0xaaa"); err != nil {
		t.Errorf("expected idempotent advance, got %v", err)
	}

	if err := m.Advance(ctx, "grading", 110, "0xbbb"); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", err)
	}

	if err := m.Advance(ctx, "grading", 105, "0xccc"); !errors.Is(err, ErrCursorRegression) {
		t.Errorf("expected ErrCursorRegression, got %v", err)
	}

	c, _ = m.Get(ctx, "grading")
	if c.LastProcessedBlock != 110 {
		t.Errorf("cursor moved on rejected advance: %d", c.LastProcessedBlock)
	}
}

func TestManagerAdvance_FillsMissingHash(t *testing.T) {
	m := NewManager(newMockCursorRepo())
	ctx := context.Background()
	_, _ = m.Initialize(ctx, "grading", 100)

	if err := m.Advance(ctx, "grading", 100, "0xaaa"); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	c, _ := m.Get(ctx, "grading")
	if c.LastBlockHash != "0xaaa" {
		t.Errorf("expected hash to be recorded, got %q", c.LastBlockHash)
	}
}

func TestManagerSetState(t *testing.T) {
	m := NewManager(newMockCursorRepo())
	ctx := context.Background()

	var transitions []Transition
	m.SetStateChangeCallback(func(key string, tr Transition) {
		transitions = append(transitions, tr)
	})

	_, _ = m.Initialize(ctx, "grading", 0)
	if err := m.SetState(ctx, "grading", StateMonitoring, "start"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	// no-op
	if err := m.SetState(ctx, "grading", StateMonitoring, "again"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := m.SetState(ctx, "grading", StateIdle, "stop"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := m.SetState(ctx, "grading", State("paused"), "bogus"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].To != StateMonitoring || transitions[1].To != StateIdle {
		t.Errorf("unexpected transitions %+v", transitions)
	}
}
