// Package position owns the open-position table and its lifecycle: the
// Decision Engine inserts an open position, the Manager re-marks it every
// tick and is the only component that moves it to Closed. At most one open
// position may exist per market at a time.
package position

import (
	"time"

	"github.com/sawpanic/sportsedge/internal/quote"
	"github.com/sawpanic/sportsedge/internal/venue"
)

// State is the explicit position lifecycle: Open -> Closing -> Closed.
type State string

const (
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// CloseReason names why a position transitioned to Closed.
type CloseReason string

const (
	ReasonStopLoss       CloseReason = "stop_loss"
	ReasonTakeProfit     CloseReason = "take_profit"
	ReasonFeedDegraded   CloseReason = "feed_degraded"
	ReasonMaxAge         CloseReason = "max_age"
	ReasonMarketResolved CloseReason = "market_resolved"
)

// Position is one risk-sized holding of a single token in a binary winner
// market, with the entry telemetry needed for later calibration training.
type Position struct {
	ID       string
	MarketID string
	TokenID  string
	Sport    string
	Side     venue.OrderSide

	Stake      float64
	EntryPrice float64
	EntrySize  float64 // shares = stake / entry_price

	StopPrice float64
	TakePrice float64

	OpenedAt time.Time

	EntryQuoteSource quote.SourceKind
	EntryQuoteAgeMs  int64
	// Entry probabilities are for the held side, so a resolved outcome can be
	// compared against them directly when retraining calibration.
	EntryRawProb   float64
	EntryCalibProb float64

	WSQuoteCount   int64
	RESTQuoteCount int64
	LastMark       float64 // most recent bid observed by the tick loop, 0 until first tick

	State State

	ExitPrice  float64
	ExitReason CloseReason
	ClosedAt   time.Time

	RealizedGrossPnL float64
	RealizedNetPnL   float64

	// EntryLiquidity/ExitLiquidity feed the round-trip cost model.
	EntryLiquidity float64
	ExitLiquidity  float64
}
