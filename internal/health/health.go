// Package health reports relay health over HTTP.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SyncHealth describes the event synchronizer.
type SyncHealth struct {
	Monitoring         bool   `json:"monitoring"`
	State              string `json:"state"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	HeadBlock          uint64 `json:"head_block"`
	BlockLag           uint64 `json:"block_lag"`
	Error              string `json:"error,omitempty"`
}

// ProviderHealth describes one ledger JSON-RPC endpoint.
type ProviderHealth struct {
	Name      string  `json:"name"`
	Available bool    `json:"available"`
	Status    string  `json:"status"`
	LatencyMs int64   `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
	Usage     float64 `json:"usage_percentage"`
}

// Report is the full health report.
type Report struct {
	Status              SystemStatus      `json:"status"`
	Sync                SyncHealth        `json:"sync"`
	Providers           []ProviderHealth  `json:"providers"`
	Circuits            map[string]string `json:"circuits"`
	PendingTransactions int               `json:"pending_transactions"`
	Dependencies        map[string]string `json:"dependencies,omitempty"`
	CheckedAt           time.Time         `json:"checked_at"`
}
