// Package venue specifies the external Prediction Market Venue contract
// consumed by the engine. Only the contracts are specified here;
// the concrete HTTP/WS clients are thin adapters over that contract.
package venue

import (
	"context"
	"time"
)

// MarketStatusKind is the lifecycle state of a Market.
type MarketStatusKind string

const (
	StatusActive   MarketStatusKind = "active"
	StatusClosed   MarketStatusKind = "closed"
	StatusResolved MarketStatusKind = "resolved"
)

// MarketStatus reports a market's current lifecycle state and, once resolved,
// its binary outcome (1.0 for YES, 0.0 for NO).
type MarketStatus struct {
	Status  MarketStatusKind
	Outcome float64 // meaningful only when Status == StatusResolved
}

// Market is one binary winner contract: YES pays $1 if the mapped team wins.
type Market struct {
	ID          string
	Title       string
	YesTokenID  string
	NoTokenID   string
	FixtureID   string
	YesIsHome   bool
	Liquidity   float64 // a displayed-liquidity indicator, used for slippage and tie-breaks
	Status      MarketStatus
	YesDescription string // free-text description of the YES side, used to infer YesIsHome
}

// OrderSide is which token a Position is long.
type OrderSide string

const (
	SideYes OrderSide = "YES"
	SideNo  OrderSide = "NO"
)

// OrderResult is what PlaceOrder returns, partial fills included.
type OrderResult struct {
	FilledPrice float64
	FilledSize  float64
	Fees        float64
	Complete    bool // false if FilledSize < requested size (partial fill)
}

// OrderBook is the minimal top-of-book snapshot the engine needs.
type OrderBook struct {
	BestBid float64
	BestAsk float64
	SizeBid float64
	SizeAsk float64
}

// RawQuote is a single WS tick or REST snapshot for a token.
type RawQuote struct {
	TokenID   string
	BestBid   float64
	BestAsk   float64
	AskSize   float64
	Timestamp time.Time
}

// MarketSearcher resolves fixtures to markets.
type MarketSearcher interface {
	SearchMarkets(ctx context.Context, query string) ([]Market, error)
}

// OrderBookSource returns REST top-of-book.
type OrderBookSource interface {
	GetOrderbook(ctx context.Context, tokenID string) (OrderBook, error)
}

// QuoteStreamer maintains a live WS subscription per token. Implementations push into the returned channel until the
// context is cancelled or Unsubscribe is called.
type QuoteStreamer interface {
	Subscribe(ctx context.Context, tokenID string) (<-chan RawQuote, error)
	Unsubscribe(tokenID string)
}

// OrderPlacer places (and in dry-run mode, synthesizes) fills.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, marketID string, side OrderSide, price, size float64) (OrderResult, error)
}

// StatusChecker reports a market's lifecycle state.
type StatusChecker interface {
	GetMarketStatus(ctx context.Context, marketID string) (MarketStatus, error)
}

// Client bundles every venue capability the engine needs. Modeled as a
// capability set rather than an inheritance hierarchy.
type Client interface {
	MarketSearcher
	OrderBookSource
	QuoteStreamer
	OrderPlacer
	StatusChecker
}
