// Package health tracks per-provider failure rates and drives the
// self-healing cool-down that the failover router consults.
//
// The tracker is the one piece of truly global, cross-conversation mutable
// state in the fulfillment core. A single instance is created at startup and
// injected into the router; all access goes through its mutex.
package health

import (
	"sync"
	"time"
)

// Outcome is the result of one provider attempt.
type Outcome int

const (
	// Success marks a completed attempt.
	Success Outcome = iota
	// Failure marks a failed attempt (timeout, quota, auth, malformed
	// response). Canceled attempts are never reported.
	Failure
)

// Config tunes the unhealthiness policy. The thresholds are operational
// tuning constants and deliberately configuration, not code.
type Config struct {
	WindowSize  int           // trailing attempts considered (default: 20)
	MinSamples  int           // attempts required before tripping (default: 5)
	FailureRate float64       // failure fraction that trips the cool-down (default: 0.5)
	Cooldown    time.Duration // how long a tripped provider stays ineligible (default: 5m)

	// Now overrides the clock used when recording trips. Tests only.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:  20,
		MinSamples:  5,
		FailureRate: 0.5,
		Cooldown:    5 * time.Minute,
	}
}

// Metrics is a point-in-time snapshot of one provider's health state, safe
// to serialize for operator visibility.
type Metrics struct {
	Attempts       int       `json:"attempts"`
	Failures       int       `json:"failures"`
	UnhealthyUntil time.Time `json:"unhealthy_until,omitzero"`
	Healthy        bool      `json:"healthy"`
}

// providerState holds the trailing-window ring buffer for one provider.
type providerState struct {
	outcomes       []bool // true = failure
	next           int
	count          int
	unhealthyUntil time.Time
}

// Tracker records attempt outcomes and answers health queries.
// Safe for concurrent use by multiple goroutines.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	providers map[string]*providerState
	now       func() time.Time
}

// New creates a Tracker. Zero-value config fields fall back to defaults.
func New(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.FailureRate <= 0 || cfg.FailureRate > 1 {
		cfg.FailureRate = def.FailureRate
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		cfg:       cfg,
		providers: make(map[string]*providerState),
		now:       now,
	}
}

// Report records the outcome of one attempt against providerID. When the
// trailing window shows a failure rate at or above the configured threshold,
// the provider is marked unhealthy for the cool-down period and its window
// resets so a recovered provider starts clean.
func (t *Tracker) Report(providerID string, outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(providerID)
	st.outcomes[st.next] = outcome == Failure
	st.next = (st.next + 1) % t.cfg.WindowSize
	if st.count < t.cfg.WindowSize {
		st.count++
	}

	if st.count < t.cfg.MinSamples {
		return
	}

	failures := 0
	for i := range st.count {
		if st.outcomes[i] {
			failures++
		}
	}
	if float64(failures)/float64(st.count) >= t.cfg.FailureRate {
		st.unhealthyUntil = t.now().Add(t.cfg.Cooldown)
		st.outcomes = make([]bool, t.cfg.WindowSize)
		st.next = 0
		st.count = 0
	}
}

// Healthy reports whether providerID is eligible for selection at the given
// instant. A provider with no recorded history is healthy. Recovery is
// automatic: once now reaches the cool-down deadline the provider becomes
// eligible again with no manual reset.
func (t *Tracker) Healthy(providerID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.providers[providerID]
	if !ok {
		return true
	}
	return !now.Before(st.unhealthyUntil)
}

// Snapshot returns the current metrics for providerID.
func (t *Tracker) Snapshot(providerID string) Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.providers[providerID]
	if !ok {
		return Metrics{Healthy: true}
	}

	failures := 0
	for i := range st.count {
		if st.outcomes[i] {
			failures++
		}
	}
	return Metrics{
		Attempts:       st.count,
		Failures:       failures,
		UnhealthyUntil: st.unhealthyUntil,
		Healthy:        !t.now().Before(st.unhealthyUntil),
	}
}

// state returns the mutable state for providerID, creating it on first use.
// Caller must hold t.mu.
func (t *Tracker) state(providerID string) *providerState {
	st, ok := t.providers[providerID]
	if !ok {
		st = &providerState{outcomes: make([]bool, t.cfg.WindowSize)}
		t.providers[providerID] = st
	}
	return st
}
