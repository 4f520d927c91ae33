// Package quote serves prices with a WS-first preference: a fresh
// WS-maintained quote wins, anything older falls back to a REST fetch, and
// every quote reports which transport produced it and how old it is.
package quote

import "time"

// SourceKind is which transport produced a Quote.
type SourceKind string

const (
	SourceWS   SourceKind = "ws"
	SourceREST SourceKind = "rest"
)

// Quote is one token's top-of-book snapshot.
type Quote struct {
	TokenID    string
	BestBid    float64
	BestAsk    float64
	Mid        float64
	AskSize    float64 // displayed size at the ask; 0 when the transport doesn't carry sizes
	Source     SourceKind
	ObservedAt time.Time
}

// AgeMs returns the quote's age in milliseconds as of `now`.
func (q Quote) AgeMs(now time.Time) int64 {
	return now.Sub(q.ObservedAt).Milliseconds()
}
