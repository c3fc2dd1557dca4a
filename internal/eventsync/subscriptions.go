package eventsync

import (
	"cmp"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vietddude/nftrelay/internal/core/domain"
)

// ErrNilCallback is returned by Subscribe without a callback.
var ErrNilCallback = errors.New("subscription callback is nil")

// Subscribe registers callback for eventName on the contract registered as
// contractKey and returns the subscription id.
func (s *Synchronizer) Subscribe(
	contractKey, eventName string,
	callback domain.EventCallback,
	filter domain.EventFilter,
) (string, error) {
	if callback == nil {
		return "", ErrNilCallback
	}
	c, err := s.contracts.Get(contractKey)
	if err != nil {
		return "", err
	}
	if _, err := c.EventID(eventName); err != nil {
		return "", err
	}

	sub := &domain.EventSubscription{
		ID:          uuid.NewString(),
		ContractKey: contractKey,
		EventName:   eventName,
		Callback:    callback,
		Filter:      filter,
		CreatedAt:   time.Now(),
	}

	s.subsMu.Lock()
	s.subs[sub.ID] = sub
	s.tracked[trackKey{contractKey, eventName}]++
	s.subsMu.Unlock()

	s.logger.Debug("Subscribed", "id", sub.ID, "contract", contractKey, "event", eventName)
	return sub.ID, nil
}

// Unsubscribe removes a subscription. It reports whether id existed.
func (s *Synchronizer) Unsubscribe(id string) bool {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return false
	}
	s.untrackLocked(trackKey{sub.ContractKey, sub.EventName})
	delete(s.subs, id)
	return true
}

// UnsubscribeAll removes every subscription.
func (s *Synchronizer) UnsubscribeAll() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	clear(s.tracked)
	clear(s.subs)
}

// Subscriptions returns the number of active subscriptions.
func (s *Synchronizer) Subscriptions() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

func (s *Synchronizer) untrackLocked(k trackKey) {
	s.tracked[k]--
	if s.tracked[k] <= 0 {
		delete(s.tracked, k)
	}
}

// snapshot returns subscriptions in creation order.
func (s *Synchronizer) snapshot() []*domain.EventSubscription {
	s.subsMu.RLock()
	out := make([]*domain.EventSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	s.subsMu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.EventSubscription) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

// ArgEquals matches events whose argument name equals want. Numbers,
// addresses and hashes compare by value, so big.NewInt(7) matches uint16(7).
func ArgEquals(name string, want any) domain.EventFilter {
	w := argString(want)
	return func(e domain.ProcessedEvent) bool {
		v, ok := e.Args[name]
		return ok && argString(v) == w
	}
}

// MatchArgs matches events where every listed argument is equal.
func MatchArgs(want map[string]any) domain.EventFilter {
	filters := make([]domain.EventFilter, 0, len(want))
	for k, v := range want {
		filters = append(filters, ArgEquals(k, v))
	}
	return func(e domain.ProcessedEvent) bool {
		for _, f := range filters {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

func argString(v any) string {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return ""
		}
		return x.String()
	case common.Address:
		return strings.ToLower(x.Hex())
	case common.Hash:
		return strings.ToLower(x.Hex())
	case string:
		if common.IsHexAddress(x) {
			return strings.ToLower(common.HexToAddress(x).Hex())
		}
		return x
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return fmt.Sprint(x)
	}
}
