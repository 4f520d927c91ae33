// Package decision implements the trading decision pipeline: on receipt
// of a ScoreEvent it runs an ordered gate pipeline and either opens a
// risk-sized Position or drops the event with a reason code.
package decision

import (
	"time"

	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/position"
)

// Reason is a gate-rejection reason code.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonScoreCorrection       Reason = "score_correction"
	ReasonPaused                Reason = "paused"
	ReasonStaleEvent            Reason = "stale_event"
	ReasonInsufficientShift     Reason = "insufficient_probability_shift"
	ReasonNoMarket              Reason = "no_market_found"
	ReasonQuoteUnavailable      Reason = "quote_unavailable"
	ReasonDivergence            Reason = "ws_rest_divergence"
	ReasonNetEdgeTooLow         Reason = "net_edge_below_threshold"
	ReasonStakeTooSmall         Reason = "stake_too_small"
	ReasonInsufficientBalance   Reason = "insufficient_balance"
	ReasonRiskRejected          Reason = "risk_budget_exceeded"
	ReasonDuplicatePosition     Reason = "duplicate_position"
	ReasonOrderFailed           Reason = "order_failed"
)

// Outcome is the result of processing one ScoreEvent.
type Outcome struct {
	Accepted bool
	Reason   Reason
	Detail   string
	Position *position.Position
}

// FixtureLookup resolves a fixture's identity for market search (satisfied by
// *feed.Aggregator).
type FixtureLookup interface {
	Fixture(fixtureID string) (feed.Fixture, bool)
}

// EventPersister persists every ScoreEvent exactly once on receipt, including
// corrections.
type EventPersister interface {
	SaveScoreEvent(ev feed.ScoreEvent) error
}

// OpenPnLProvider supplies the live marked PnL of open positions for the Risk
// Book's day-drawdown check.
type OpenPnLProvider interface {
	OpenMarkedPnL() float64
}

func clampTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
