package cursor

import (
	"errors"
	"slices"
	"time"

	"github.com/vietddude/nftrelay/internal/core/domain"
)

// State is an alias for domain.SyncState for internal use.
type State = domain.SyncState

const (
	StateIdle       = domain.SyncStateIdle
	StateMonitoring = domain.SyncStateMonitoring
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// An empty state is a cursor that has never been started.
var ValidTransitions = map[State][]State{
	"":              {StateIdle, StateMonitoring},
	StateIdle:       {StateMonitoring},
	StateMonitoring: {StateIdle},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}
