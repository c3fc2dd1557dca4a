package redis

import (
	"testing"
	"time"
)

func TestParseWindowReply(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	w, err := parseWindowReply([]any{int64(3), int64(1500)}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Count != 3 {
		t.Errorf("expected count 3, got %d", w.Count)
	}
	if !w.ResetAt.Equal(now.Add(1500 * time.Millisecond)) {
		t.Errorf("unexpected reset %v", w.ResetAt)
	}

	bad := []any{
		"OK",
		[]any{int64(1)},
		[]any{"1", int64(10)},
	}
	for _, b := range bad {
		if _, err := parseWindowReply(b, now); err == nil {
			t.Errorf("expected error for %v", b)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := rateKey("nftrelay", "mint:0xabc"); got != "nftrelay:ratelimit:mint:0xabc" {
		t.Errorf("unexpected rate key %s", got)
	}
	if got := leaseKey("nftrelay", "eventsync"); got != "nftrelay:lease:eventsync" {
		t.Errorf("unexpected lease key %s", got)
	}
}
