package provider

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // working normally
	StatusDegraded                        // slow but working
	StatusThrottled                       // rate limiting us
	StatusBlocked                         // refused this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status            string        `json:"status"`
	AverageLatency    time.Duration `json:"average_latency"`
	ThrottleCount429  int           `json:"throttle_count_429"`
	ThrottleCount403  int           `json:"throttle_count_403"`
	RequestsLastHour  int           `json:"requests_last_hour"`
	RequestsInWindow  int           `json:"requests_in_window"`
	DailyRequestLimit int           `json:"daily_request_limit"`
	UsagePercentage   float64       `json:"usage_percentage"`
}

const (
	defaultThrottleBackoff = time.Minute
	blockedBackoff         = 10 * time.Minute
	throttledAfter429s     = 5
)

// ProviderMonitor tracks latency, throttling and daily usage of one endpoint.
type ProviderMonitor struct {
	mu  sync.RWMutex
	now func() time.Time

	latencies  []time.Duration
	maxSamples int

	count429     int
	count403     int
	lastThrottle time.Time
	retryAfter   time.Duration

	requests   []time.Time
	dailyLimit int
	window     time.Duration

	slowThreshold time.Duration
	patterns      []string
}

// NewProviderMonitor creates a monitor with default thresholds.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		now:        time.Now,
		latencies:  make([]time.Duration, 0, 100),
		maxSamples: 100,
		patterns: []string{
			"rate limit exceeded",
			"too many requests",
			"daily request count exceeded",
			"project rate limit",
			"monthly quota exceeded",
			"compute units per second",
		},
		dailyLimit:    100000,
		window:        24 * time.Hour,
		slowThreshold: 3 * time.Second,
	}
}

// SetClock overrides the time source.
func (pm *ProviderMonitor) SetClock(now func() time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.now = now
}

// SetDailyLimit updates the estimated daily request quota.
func (pm *ProviderMonitor) SetDailyLimit(limit int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if limit > 0 {
		pm.dailyLimit = limit
	}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.latencies = append(pm.latencies, latency)
	if len(pm.latencies) > pm.maxSamples {
		pm.latencies = pm.latencies[1:]
	}

	now := pm.now()
	pm.requests = append(pm.requests, now)
	pm.pruneLocked(now)
}

// pruneLocked drops timestamps outside the usage window. Timestamps are
// appended in order so the first one still inside the window marks the cut.
func (pm *ProviderMonitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-pm.window)
	i := 0
	for i < len(pm.requests) && !pm.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		pm.requests = append(pm.requests[:0], pm.requests[i:]...)
	}
}

// RecordThrottle records a 429 or 403 response. retryAfter is the raw
// Retry-After header value in seconds, if the server sent one.
func (pm *ProviderMonitor) RecordThrottle(statusCode int, retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.lastThrottle = pm.now()

	switch statusCode {
	case 429:
		pm.count429++
		pm.retryAfter = defaultThrottleBackoff
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			pm.retryAfter = time.Duration(secs) * time.Second
		}
	case 403:
		pm.count403++
		pm.retryAfter = blockedBackoff
	}
}

// DetectThrottlePattern checks if a message looks like a quota error.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range pm.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked()
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	inBackoff := pm.now().Sub(pm.lastThrottle) < pm.retryAfter

	if pm.count403 > 0 && inBackoff {
		return StatusBlocked
	}
	if pm.count429 > throttledAfter429s && inBackoff {
		return StatusThrottled
	}
	if len(pm.latencies) > 10 && pm.avgLatencyLocked() > pm.slowThreshold {
		return StatusDegraded
	}
	if float64(len(pm.requests))/float64(pm.dailyLimit) > 0.9 {
		return StatusThrottled
	}
	return StatusHealthy
}

func (pm *ProviderMonitor) avgLatencyLocked() time.Duration {
	if len(pm.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range pm.latencies {
		total += l
	}
	return total / time.Duration(len(pm.latencies))
}

// GetRetryAfter returns remaining time before retry is allowed.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	remaining := pm.retryAfter - pm.now().Sub(pm.lastThrottle)
	if remaining > 0 {
		return remaining
	}
	return 0
}

// GetRequestCount returns number of requests in the trailing duration.
func (pm *ProviderMonitor) GetRequestCount(d time.Duration) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.countSinceLocked(d)
}

func (pm *ProviderMonitor) countSinceLocked(d time.Duration) int {
	cutoff := pm.now().Add(-d)
	count := 0
	for _, t := range pm.requests {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// GetStats returns a snapshot of the monitor.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return MonitorStats{
		Status:            pm.statusLocked().String(),
		AverageLatency:    pm.avgLatencyLocked(),
		ThrottleCount429:  pm.count429,
		ThrottleCount403:  pm.count403,
		RequestsLastHour:  pm.countSinceLocked(time.Hour),
		RequestsInWindow:  len(pm.requests),
		DailyRequestLimit: pm.dailyLimit,
		UsagePercentage:   float64(len(pm.requests)) / float64(pm.dailyLimit) * 100,
	}
}
