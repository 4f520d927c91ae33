// Package models implements the per-sport win-probability estimators.
package models

import "math"

// Sport tags the sport-specific game state and model dispatch.
type Sport string

const (
	Soccer Sport = "soccer"
	NFL    Sport = "nfl"
	NBA    Sport = "nba"
	MLB    Sport = "mlb"
	NHL    Sport = "nhl"
	Tennis Sport = "tennis"
)

const (
	probFloor = 0.03
	probCeil  = 0.97
)

// Clamp bounds a raw probability to [0.03, 0.97].
func Clamp(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}

// GameState is a sport-tagged union of per-sport scoring state.
// Only the fields relevant to Sport are populated; the rest are zero.
type GameState struct {
	Sport Sport

	// Soccer / NHL: goals
	GoalsHome int
	GoalsAway int
	MinuteOrPeriod int // soccer: match minute (0-90+); NHL: period (1-3+OT)
	SecondsRemaining float64 // NHL, NFL, NBA: clock remaining in the current period/game

	// NFL / NBA
	ScoreHome         int
	ScoreAway         int
	PossessionIsHome  bool

	// MLB
	RunsHome  int
	RunsAway  int
	InningHalfIndex int // 0-based: top of 1st = 0, bottom of 1st = 1, ...
	Outs      int
	BattingIsHome bool

	// Tennis
	SetsWonHome   int
	SetsWonAway   int
	GamesHomeCurrentSet int
	GamesAwayCurrentSet int
	ServerIsHome  bool
}

// Model maps a GameState to a raw (pre-calibration) home win probability.
type Model func(state GameState) float64

// sigmoid is the logistic function used by every logistic-form model and the calibrator.
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// logit is the inverse of sigmoid, used by the Calibrator's Platt scaling.
func logit(p float64) float64 {
	p = Clamp(p)
	return math.Log(p / (1 - p))
}

// ForSport returns the model function for a given sport, falling back to
// PFallback for anything unrecognized.
func ForSport(sport Sport) Model {
	switch sport {
	case Soccer:
		return PSoccer
	case NFL:
		return PNFL
	case NBA:
		return PNBA
	case MLB:
		return PMLB
	case NHL:
		return PNHL
	case Tennis:
		return PTennis
	default:
		return PFallback
	}
}
