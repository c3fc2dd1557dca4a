package health

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/nftrelay/internal/core/cursor"
	"github.com/vietddude/nftrelay/internal/infra/rpc/provider"
	"github.com/vietddude/nftrelay/internal/resilience"
)

// HeadFetcher reads the latest block number.
type HeadFetcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Check pings an external dependency such as the database or Redis.
type Check func(ctx context.Context) error

// Sources are the components a Monitor inspects. Nil fields are skipped.
type Sources struct {
	Cursors      *cursor.Manager
	CursorKey    string
	Head         HeadFetcher
	Monitoring   func() bool
	Providers    []provider.Provider
	Breakers     func() map[string]resilience.CircuitState
	Pending      func() int
	Dependencies map[string]Check
}

const (
	lagDegraded = 10
	lagCritical = 100
	cacheFor    = 10 * time.Second
)

// Monitor aggregates health status from the relay components.
type Monitor struct {
	src        Sources
	now        func() time.Time
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(src Sources) *Monitor {
	return &Monitor{src: src, now: time.Now}
}

// CheckHealth builds a report. Results are cached briefly so probes do not
// turn into ledger traffic.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < cacheFor {
		return *m.lastReport
	}

	r := Report{
		Status:    StatusHealthy,
		Circuits:  make(map[string]string),
		CheckedAt: m.now(),
	}
	degrade := func(s SystemStatus) {
		if s == StatusCritical || r.Status == StatusHealthy {
			r.Status = s
		}
	}

	m.checkSync(ctx, &r, degrade)
	m.checkProviders(&r, degrade)

	if m.src.Breakers != nil {
		for key, st := range m.src.Breakers() {
			r.Circuits[key] = st.State.String()
			if st.State != resilience.StateClosed {
				degrade(StatusDegraded)
			}
		}
	}
	if m.src.Pending != nil {
		r.PendingTransactions = m.src.Pending()
	}

	if len(m.src.Dependencies) > 0 {
		r.Dependencies = make(map[string]string, len(m.src.Dependencies))
		for _, name := range slices.Sorted(maps.Keys(m.src.Dependencies)) {
			if err := m.src.Dependencies[name](ctx); err != nil {
				r.Dependencies[name] = err.Error()
				degrade(StatusCritical)
				continue
			}
			r.Dependencies[name] = "ok"
		}
	}

	m.lastCheck = m.now()
	m.lastReport = &r
	return r
}

func (m *Monitor) checkSync(ctx context.Context, r *Report, degrade func(SystemStatus)) {
	if m.src.Monitoring != nil {
		r.Sync.Monitoring = m.src.Monitoring()
	}
	if m.src.Cursors == nil || m.src.Head == nil {
		return
	}

	head, err := m.src.Head.BlockNumber(ctx)
	if err != nil {
		r.Sync.Error = err.Error()
		degrade(StatusDegraded)
		return
	}
	r.Sync.HeadBlock = head

	c, err := m.src.Cursors.Get(ctx, m.src.CursorKey)
	if err != nil {
		// no cursor until monitoring first starts
		return
	}
	r.Sync.State = string(c.State)
	r.Sync.LastProcessedBlock = c.LastProcessedBlock
	if head > c.LastProcessedBlock {
		r.Sync.BlockLag = head - c.LastProcessedBlock
	}

	if !r.Sync.Monitoring {
		return
	}
	switch {
	case r.Sync.BlockLag > lagCritical:
		degrade(StatusCritical)
	case r.Sync.BlockLag > lagDegraded:
		degrade(StatusDegraded)
	}
}

func (m *Monitor) checkProviders(r *Report, degrade func(SystemStatus)) {
	if len(m.src.Providers) == 0 {
		return
	}
	available := 0
	for _, p := range m.src.Providers {
		h := p.GetHealth()
		ph := ProviderHealth{
			Name:      p.GetName(),
			Available: p.IsAvailable(),
			LatencyMs: h.Latency.Milliseconds(),
			ErrorRate: h.ErrorRate,
		}
		if h.MonitorStats != nil {
			ph.Status = h.MonitorStats.Status
			ph.Usage = h.MonitorStats.UsagePercentage
		}
		if ph.Available {
			available++
		}
		r.Providers = append(r.Providers, ph)
	}

	switch {
	case available == 0:
		degrade(StatusCritical)
	case available < len(m.src.Providers):
		degrade(StatusDegraded)
	}
}
