// Package feedhealth watches the quality of the quote feed: it
// maintains EWMAs of REST fallback rate and WS quote age, derives a
// feed-quality score, and adaptively tightens entry gates (or pauses new
// entries) when quality degrades.
package feedhealth

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/sportsedge/internal/netutil/circuit"
)

// Config parameterizes the EWMA decay and pause behavior.
type Config struct {
	Alpha             float64       // EWMA smoothing factor
	PauseThreshold    float64       // feed-quality score below which entries pause
	SustainedWindow   time.Duration // how long quality must stay below threshold before pausing
	CooldownAfter     time.Duration // how long a pause lasts before a half-open trial resumes entries
	WSAgeNormMs       float64       // WS age (ms) at which the age component of quality hits zero
}

// DefaultConfig pauses entries when the fallback-rate EWMA stays pinned
// high for a sustained minute.
func DefaultConfig() Config {
	return Config{
		Alpha:           0.2,
		PauseThreshold:  0.35,
		SustainedWindow: 60 * time.Second,
		CooldownAfter:   2 * time.Minute,
		WSAgeNormMs:     5000,
	}
}

// Monitor tracks feed quality and gates adaptation.
type Monitor struct {
	cfg Config

	mu              sync.Mutex
	ewmaFallback    float64
	ewmaWSAgeMs     float64
	initialized     bool
	belowSince      time.Time
	belowContinuous bool

	breaker *circuit.Breaker
}

// New constructs a Monitor whose pause/resume behavior is backed by a circuit
// breaker in half-open recovery mode.
func New(cfg Config) *Monitor {
	return &Monitor{
		cfg: cfg,
		breaker: circuit.New(circuit.Config{
			FailureThreshold: 1, // a single ForceOpen call trips it; see Observe
			TrialSuccesses:   1,
			CooldownAfter:    cfg.CooldownAfter,
			CallTimeout:      time.Second,
		}),
	}
}

// Observe records one quote observation: isRest indicates the quote source
// was REST rather than WS, and wsAgeMs is the age of the most recent WS quote
// (0 if none is available, treated as maximally fresh so only genuine
// staleness degrades the score).
func (m *Monitor) Observe(isRest bool, wsAgeMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fallback := 0.0
	if isRest {
		fallback = 1.0
	}

	if !m.initialized {
		m.ewmaFallback = fallback
		m.ewmaWSAgeMs = wsAgeMs
		m.initialized = true
	} else {
		m.ewmaFallback = m.cfg.Alpha*fallback + (1-m.cfg.Alpha)*m.ewmaFallback
		m.ewmaWSAgeMs = m.cfg.Alpha*wsAgeMs + (1-m.cfg.Alpha)*m.ewmaWSAgeMs
	}

	m.updatePauseStateLocked()
}

// Score returns the current feed-quality score in [0,1], a decreasing
// function of both EWMAs.
func (m *Monitor) Score() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreLocked()
}

// scoreLocked multiplies the two freshness signals so either one alone can
// drive quality to zero: a feed that is all REST fallback is degraded even
// while its last WS quote was recent, and vice versa.
func (m *Monitor) scoreLocked() float64 {
	fallbackComponent := 1 - m.ewmaFallback
	if fallbackComponent < 0 {
		fallbackComponent = 0
	}
	ageComponent := 1 - m.ewmaWSAgeMs/m.cfg.WSAgeNormMs
	if ageComponent < 0 {
		ageComponent = 0
	}
	if ageComponent > 1 {
		ageComponent = 1
	}
	return fallbackComponent * ageComponent
}

func (m *Monitor) updatePauseStateLocked() {
	q := m.scoreLocked()

	if q < m.cfg.PauseThreshold {
		if !m.belowContinuous {
			m.belowContinuous = true
			m.belowSince = time.Now()
		}
		if time.Since(m.belowSince) >= m.cfg.SustainedWindow {
			m.breaker.ForceOpen()
		}
		return
	}

	m.belowContinuous = false
}

// PauseNewEntries reports whether new positions should be blocked right now.
// Once CooldownAfter has elapsed since the breaker tripped, a no-op trial call
// moves it through half-open back to closed and entries resume; a later
// observation still below the pause threshold trips it again.
func (m *Monitor) PauseNewEntries() bool {
	if m.breaker.State() == circuit.Open {
		_ = m.breaker.Run(context.Background(), func(context.Context) error { return nil })
	}
	return m.breaker.State() != circuit.Closed
}

// AdaptiveMinEdge tightens min_edge as feed quality degrades.
func (m *Monitor) AdaptiveMinEdge(baseMinEdge float64) float64 {
	q := m.Score()
	multiplier := 1 + 1.5*(1-q)
	if multiplier > 3 {
		multiplier = 3
	}
	return baseMinEdge * multiplier
}

// AdaptiveDivergence lowers MAX_ENTRY_QUOTE_DIVERGENCE as feed quality degrades.
func (m *Monitor) AdaptiveDivergence(baseDivergence float64) float64 {
	q := m.Score()
	multiplier := q
	if multiplier < 0.25 {
		multiplier = 0.25 // never gate divergence down to zero
	}
	return baseDivergence * multiplier
}

// AdaptiveShiftThreshold raises a sport's probability-shift threshold as feed
// quality degrades.
func (m *Monitor) AdaptiveShiftThreshold(base float64) float64 {
	q := m.Score()
	multiplier := 1 + 1.0*(1-q)
	return base * multiplier
}

// Stats is a point-in-time snapshot for the dashboard.
type Stats struct {
	EWMAFallbackRate float64
	EWMAWSAgeMs      float64
	Score            float64
	PauseNewEntries  bool
}

// Stats returns a snapshot of the monitor's internal state.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	q := m.scoreLocked()
	fallback := m.ewmaFallback
	age := m.ewmaWSAgeMs
	m.mu.Unlock()

	return Stats{
		EWMAFallbackRate: fallback,
		EWMAWSAgeMs:      age,
		Score:            q,
		PauseNewEntries:  m.PauseNewEntries(),
	}
}
