package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks ledger RPC calls per provider and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_rpc_calls_total",
			Help: "Total number of ledger RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks ledger RPC errors per provider and error kind
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_rpc_errors_total",
			Help: "Total number of ledger RPC errors",
		},
		[]string{"provider", "kind"},
	)

	// RPCLatency tracks ledger RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nftrelay_rpc_latency_seconds",
			Help:    "Ledger RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// RetryAttemptsTotal counts retries scheduled by the retry coordinator
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_retry_attempts_total",
			Help: "Retries scheduled after a retryable failure",
		},
		[]string{"operation", "kind"},
	)

	// CircuitState exposes breaker state per operation key (0=closed, 1=half-open, 2=open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nftrelay_circuit_state",
			Help: "Circuit breaker state per operation key",
		},
		[]string{"key"},
	)

	// CircuitRejectionsTotal counts calls short-circuited by an open breaker
	CircuitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_circuit_rejections_total",
			Help: "Calls rejected without invoking the operation",
		},
		[]string{"key"},
	)

	// RateLimitRejectionsTotal counts calls over their fixed-window budget
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_rate_limit_rejections_total",
			Help: "Calls rejected by the fixed-window rate limiter",
		},
		[]string{"key"},
	)

	// TransactionsTotal counts terminal submission outcomes
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_transactions_total",
			Help: "Submitted transactions by outcome",
		},
		[]string{"status"},
	)

	// PendingTransactions tracks transactions awaiting inclusion
	PendingTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nftrelay_pending_transactions",
			Help: "Transactions broadcast and awaiting confirmation",
		},
	)

	// GasUsedTotal sums gas consumed by confirmed transactions
	GasUsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nftrelay_gas_used_total",
			Help: "Gas used by successful transactions",
		},
	)

	// GasFallbacksTotal counts estimator reads that fell back to a constant
	GasFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_gas_fallbacks_total",
			Help: "Gas price or limit estimations that used the fallback constant",
		},
		[]string{"field"},
	)

	// EventsDispatchedTotal counts events delivered to subscribers
	EventsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftrelay_events_dispatched_total",
			Help: "Events delivered to subscription callbacks",
		},
		[]string{"contract", "event"},
	)

	// SyncPassFailuresTotal counts polling passes that left the cursor in place
	SyncPassFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nftrelay_sync_pass_failures_total",
			Help: "Event sync passes that failed and will be retried",
		},
	)

	// SyncCursorBlock tracks the last processed block
	SyncCursorBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nftrelay_sync_cursor_block",
			Help: "Last block processed by the event synchronizer",
		},
	)

	// ChainHeadBlock tracks the latest block observed on the ledger
	ChainHeadBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nftrelay_chain_head_block",
			Help: "Latest block number reported by the ledger",
		},
	)

	// ReorgsDetectedTotal counts cursor hash mismatches
	ReorgsDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nftrelay_reorgs_detected_total",
			Help: "Times the stored cursor block hash no longer matched the ledger",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of used database connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nftrelay_db_connection_pool_usage_percent",
			Help: "Percentage of used database connections",
		},
	)

	// ProviderAvailable reports whether each RPC provider accepts calls (1) or not (0)
	ProviderAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nftrelay_provider_available",
			Help: "Whether the RPC provider is currently usable",
		},
		[]string{"provider"},
	)

	// JournalPrunedTotal counts transaction records removed by retention
	JournalPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nftrelay_journal_pruned_total",
			Help: "Settled transaction journal records deleted after retention",
		},
	)
)
