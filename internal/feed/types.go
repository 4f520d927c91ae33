// Package feed implements the Score Feed Aggregator: it polls
// score providers, diffs against last-seen state per fixture, classifies and
// de-duplicates deltas, and emits ScoreEvents into a bounded queue.
package feed

import (
	"time"

	"github.com/sawpanic/sportsedge/internal/models"
)

// Kind classifies a score delta by sport-specific scoring atom.
type Kind string

const (
	KindGoalHome         Kind = "goal_home"
	KindGoalAway         Kind = "goal_away"
	KindTouchdownHome    Kind = "touchdown_home"
	KindTouchdownAway    Kind = "touchdown_away"
	KindFieldGoalHome    Kind = "field_goal_home"
	KindFieldGoalAway    Kind = "field_goal_away"
	KindBasketHome       Kind = "basket_home"
	KindBasketAway       Kind = "basket_away"
	KindRunHome          Kind = "run_home"
	KindRunAway          Kind = "run_away"
	KindSetWonHome       Kind = "set_won_home"
	KindSetWonAway       Kind = "set_won_away"
	KindGameWonHome      Kind = "game_won_home"
	KindGameWonAway      Kind = "game_won_away"
	KindPeriodEnd        Kind = "period_end"
	KindScoreCorrection  Kind = "score_correction"
)

// Fixture tracks one live game's identity and most recently observed state.
type Fixture struct {
	ID          string
	Sport       models.Sport
	HomeTeam    string
	AwayTeam    string
	State       models.GameState
	LastSeen    time.Time
	ProviderVotes map[string]int // provider name -> number of observations received from that provider
}

// ScoreEvent is an immutable record of one observed positive score delta
// (or a correction).
type ScoreEvent struct {
	ID             string
	FixtureID      string
	Kind           Kind
	PointValue     int // e.g. basket point value (2 or 3), NFL score delta
	PrevState      models.GameState
	NewState       models.GameState
	Timestamp      time.Time
	Provider       string
	ConsensusCount int
}

// RawObservation is what a Provider returns for one live fixture.
type RawObservation struct {
	FixtureID string
	Sport     models.Sport
	Home      string
	Away      string
	State     models.GameState
	ProviderTimestamp time.Time
}

// Provider is the external Score Provider contract. Implementations
// must tolerate partial results and must not let errors propagate as panics.
type Provider interface {
	Name() string
	ListLive(sportSet []models.Sport) ([]RawObservation, error)
}
