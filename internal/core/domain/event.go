package domain

import (
	"context"
	"time"
)

// ProcessedEvent is a decoded contract log delivered to subscribers.
type ProcessedEvent struct {
	ContractKey     string
	EventName       string
	BlockNumber     uint64
	BlockHash       string
	TransactionHash string
	LogIndex        uint
	Args            map[string]any
	Timestamp       time.Time
}

// EventCallback receives events for a subscription.
type EventCallback func(ctx context.Context, event ProcessedEvent) error

// EventFilter narrows a subscription. A nil filter matches everything.
type EventFilter func(event ProcessedEvent) bool

// EventSubscription binds a callback to one contract event.
type EventSubscription struct {
	ID          string
	ContractKey string
	EventName   string
	Callback    EventCallback
	Filter      EventFilter
	CreatedAt   time.Time
}

// Matches reports whether the event belongs to this subscription.
func (s *EventSubscription) Matches(event ProcessedEvent) bool {
	if s.ContractKey != event.ContractKey || s.EventName != event.EventName {
		return false
	}
	return s.Filter == nil || s.Filter(event)
}
