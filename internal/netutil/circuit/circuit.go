// Package circuit implements a generic circuit breaker used to guard external
// calls (score providers, the venue API) and to back the feed-health
// pause/resume state machine.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrOpen is returned when the breaker is rejecting calls outright.
	ErrOpen = errors.New("circuit: breaker is open")
	// ErrCallTimeout is returned when a guarded call exceeds its deadline.
	ErrCallTimeout = errors.New("circuit: call timed out")
)

// State is one of Closed (normal), Open (rejecting), or HalfOpen (trial).
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config parameterizes breaker transitions.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	TrialSuccesses   int           // consecutive half-open successes before closing
	CooldownAfter    time.Duration // time in Open before allowing a half-open trial
	CallTimeout      time.Duration // per-call deadline
}

// Breaker is a single circuit over one guarded resource (a provider, the venue).
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state           State
	consecutiveFail int
	trialSuccesses  int
	openedAt        time.Time

	totalCalls   int64
	totalFail    int64
	totalTimeout int64
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// Run executes fn if the breaker currently allows it, tracking the outcome.
// It returns ErrOpen without calling fn when the breaker is tripped and the
// cooldown has not yet elapsed.
func (b *Breaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() { resultCh <- fn(callCtx) }()

	select {
	case err := <-resultCh:
		b.record(err)
		return err
	case <-callCtx.Done():
		b.recordTimeout()
		return ErrCallTimeout
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.CooldownAfter {
			b.transition(HalfOpen)
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	if err != nil {
		b.totalFail++
		b.onFailureLocked()
		return
	}
	b.onSuccessLocked()
}

func (b *Breaker) recordTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	b.totalFail++
	b.totalTimeout++
	b.onFailureLocked()
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case Closed:
		b.consecutiveFail = 0
	case HalfOpen:
		b.trialSuccesses++
		if b.trialSuccesses >= b.cfg.TrialSuccesses {
			b.transition(Closed)
		}
	}
}

func (b *Breaker) onFailureLocked() {
	switch b.state {
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = time.Now()
		b.trialSuccesses = 0
	case HalfOpen:
		b.consecutiveFail = 0
		b.trialSuccesses = 0
	case Closed:
		b.consecutiveFail = 0
		b.trialSuccesses = 0
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot for telemetry/dashboards.
type Stats struct {
	State           State
	TotalCalls      int64
	TotalFailures   int64
	TotalTimeouts   int64
	ConsecutiveFail int
}

// Stats returns a snapshot of breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:           b.state,
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFail,
		TotalTimeouts:   b.totalTimeout,
		ConsecutiveFail: b.consecutiveFail,
	}
}

// ForceOpen manually trips the breaker, used by the feed-health monitor when
// the EWMA-derived feed-quality score crosses pause_threshold.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Open)
}

// ForceClosed manually resets the breaker to Closed.
func (b *Breaker) ForceClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
}

// Set manages one Breaker per named resource (per-provider, per-venue-endpoint).
type Set struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewSet builds a Set where every resource shares the same Config.
func NewSet(cfg Config) *Set {
	return &Set{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns (creating if needed) the Breaker for a named resource.
func (s *Set) Get(name string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	b = New(s.cfg)
	s.breakers[name] = b
	return b
}

// Run runs fn through the named resource's breaker.
func (s *Set) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return s.Get(name).Run(ctx, fn)
}

// AllStats returns a snapshot of every tracked breaker, keyed by resource name.
func (s *Set) AllStats() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Stats, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.Stats()
	}
	return out
}

// GConfig parameterizes a GBreaker.
type GConfig struct {
	Name             string
	FailureThreshold uint32
	CooldownAfter    time.Duration // gobreaker's Timeout: time spent Open before a half-open trial
	CallTimeout      time.Duration
}

// GBreaker guards one external resource (a score provider, the venue API)
// with a sony/gobreaker circuit. Unlike Breaker it has no manual
// ForceOpen hook, so it is used for plain request-guarding; the feed-health
// monitor's externally-driven pause/resume state still uses Breaker.
type GBreaker struct {
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewGBreaker constructs a GBreaker that trips after cfg.FailureThreshold
// consecutive failures and allows a single half-open trial call after
// cfg.CooldownAfter.
func NewGBreaker(cfg GConfig) *GBreaker {
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.CooldownAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &GBreaker{cb: gobreaker.NewCircuitBreaker(settings), callTimeout: cfg.CallTimeout}
}

// Run executes fn if the breaker currently allows it, enforcing a per-call
// timeout and reporting the outcome back to gobreaker.
func (g *GBreaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	_, err := g.cb.Execute(func() (interface{}, error) {
		resultCh := make(chan error, 1)
		go func() { resultCh <- fn(callCtx) }()
		select {
		case callErr := <-resultCh:
			return nil, callErr
		case <-callCtx.Done():
			return nil, ErrCallTimeout
		}
	})
	return err
}

// State reports the underlying gobreaker state.
func (g *GBreaker) State() gobreaker.State {
	return g.cb.State()
}
