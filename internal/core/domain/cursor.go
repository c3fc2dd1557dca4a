package domain

import "time"

// SyncCursor records how far the event synchronizer has processed.
type SyncCursor struct {
	Key                string    `db:"cursor_key"`
	LastProcessedBlock uint64    `db:"last_processed_block"`
	LastBlockHash      string    `db:"last_block_hash"`
	State              SyncState `db:"state"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type SyncState string

const (
	SyncStateIdle       SyncState = "idle"
	SyncStateMonitoring SyncState = "monitoring"
)
