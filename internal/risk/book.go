// Package risk tracks exposure
// by event, sport, team, and day, and enforces budgets before a new position
// is admitted.
package risk

import (
	"sync"
	"time"

	"github.com/sawpanic/sportsedge/internal/config"
)

// RejectReason enumerates why a proposed stake was not admitted.
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectEventCap         RejectReason = "risk_event_cap"
	RejectTeamCap          RejectReason = "risk_team_cap"
	RejectSportCap         RejectReason = "risk_sport_cap"
	RejectDayDrawdown      RejectReason = "risk_day_drawdown"
	RejectDayTradeCount    RejectReason = "risk_day_trade_count"
	RejectCircuitBreaker   RejectReason = "risk_circuit_breaker"
)

// Exposure is one currently-open position's contribution to risk accounting.
type Exposure struct {
	PositionID string
	MarketID   string
	Sport      string
	Team       string // the team the position is backing (the held side's team)
	Stake      float64
}

// Book is the single-writer ledger of open exposure and day-level PnL/trade
// counters.
type Book struct {
	mu sync.Mutex

	budget      config.RiskBudget
	correlation *Matrix

	open map[string]Exposure // positionID -> Exposure

	dayKey          string // YYYY-MM-DD in UTC
	dayRealizedPnL  float64
	dayTradeCount   int
	breakerTripped  bool
}

// NewBook constructs a Book with the given budget and correlation matrix.
func NewBook(budget config.RiskBudget, correlation *Matrix) *Book {
	return &Book{
		budget:      budget,
		correlation: correlation,
		open:        make(map[string]Exposure),
		dayKey:      utcDayKey(time.Now()),
	}
}

func utcDayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rolloverLocked resets day counters on UTC rollover.
func (b *Book) rolloverLocked(now time.Time) {
	key := utcDayKey(now)
	if key != b.dayKey {
		b.dayKey = key
		b.dayRealizedPnL = 0
		b.dayTradeCount = 0
		b.breakerTripped = false
	}
}

// CanAdmit evaluates every configured budget and
// returns (true, RejectNone) iff the proposed stake would not violate any of
// them, given the live marked PnL of currently-open positions.
func (b *Book) CanAdmit(now time.Time, sport, team string, stake float64, openMarkedPnL float64) (bool, RejectReason) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(now)

	if b.breakerTripped {
		return false, RejectCircuitBreaker
	}

	if b.dayTradeCount >= b.budget.DayTradeCapCount {
		b.breakerTripped = true
		return false, RejectDayTradeCount
	}

	dayPnL := b.dayRealizedPnL + openMarkedPnL
	if dayPnL <= -b.budget.DayDrawdownLimit {
		b.breakerTripped = true
		return false, RejectDayDrawdown
	}

	if stake > b.budget.PerEventCap {
		return false, RejectEventCap
	}

	sportExposure := 0.0
	teamExposure := 0.0
	for _, e := range b.open {
		if e.Sport == sport {
			sportExposure += e.Stake
		}
		teamExposure += e.Stake * b.correlation.Correlation(e.Team, team)
	}

	if sportExposure+stake > b.budget.PerSportCap {
		return false, RejectSportCap
	}
	if teamExposure+stake > b.budget.PerTeamCap {
		return false, RejectTeamCap
	}

	return true, RejectNone
}

// Admit records a newly-opened position's exposure and increments the day
// trade count. Callers must have just received true from CanAdmit.
func (b *Book) Admit(now time.Time, e Exposure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(now)
	b.open[e.PositionID] = e
	b.dayTradeCount++
}

// Release removes a closed position's exposure and folds its realized PnL
// into the day total.
func (b *Book) Release(now time.Time, positionID string, realizedNet float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(now)
	delete(b.open, positionID)
	b.dayRealizedPnL += realizedNet
}

// Snapshot is a point-in-time view for the dashboard.
type Snapshot struct {
	OpenExposures  []Exposure
	DayRealizedPnL float64
	DayTradeCount  int
	BreakerTripped bool
}

// Snapshot returns the current book state.
func (b *Book) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	exposures := make([]Exposure, 0, len(b.open))
	for _, e := range b.open {
		exposures = append(exposures, e)
	}
	return Snapshot{
		OpenExposures:  exposures,
		DayRealizedPnL: b.dayRealizedPnL,
		DayTradeCount:  b.dayTradeCount,
		BreakerTripped: b.breakerTripped,
	}
}
