package quote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/venue"
)

// Source answers quote requests WS-first: a WS-maintained quote younger than
// wsMaxAge wins; otherwise a REST fetch is issued. It also owns the per-token
// WS subscription tasks, added and removed as positions open and close.
type Source struct {
	rest     venue.OrderBookSource
	streamer venue.QuoteStreamer
	wsMaxAge time.Duration

	mu sync.RWMutex
	ws map[string]Quote // last-writer-wins by ObservedAt, one entry per token

	subsMu sync.Mutex
	subs   map[string]context.CancelFunc
}

// NewSource wires a Source to its REST fallback and WS streamer.
func NewSource(rest venue.OrderBookSource, streamer venue.QuoteStreamer, wsMaxAge time.Duration) *Source {
	return &Source{
		rest:     rest,
		streamer: streamer,
		wsMaxAge: wsMaxAge,
		ws:       make(map[string]Quote),
		subs:     make(map[string]context.CancelFunc),
	}
}

// EnsureSubscription starts a WS subscription task for tokenID if one is not
// already running; idempotent.
func (s *Source) EnsureSubscription(ctx context.Context, tokenID string) error {
	s.subsMu.Lock()
	if _, ok := s.subs[tokenID]; ok {
		s.subsMu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.subs[tokenID] = cancel
	s.subsMu.Unlock()

	ticks, err := s.streamer.Subscribe(subCtx, tokenID)
	if err != nil {
		cancel()
		s.subsMu.Lock()
		delete(s.subs, tokenID)
		s.subsMu.Unlock()
		return fmt.Errorf("subscribe quotes(%s): %w", tokenID, err)
	}

	go s.pump(subCtx, tokenID, ticks)
	return nil
}

// EndSubscription stops the WS subscription task for tokenID once no open
// position needs it.
func (s *Source) EndSubscription(tokenID string) {
	s.subsMu.Lock()
	cancel, ok := s.subs[tokenID]
	if ok {
		delete(s.subs, tokenID)
	}
	s.subsMu.Unlock()
	if ok {
		cancel()
		s.streamer.Unsubscribe(tokenID)
	}

	s.mu.Lock()
	delete(s.ws, tokenID)
	s.mu.Unlock()
}

func (s *Source) pump(ctx context.Context, tokenID string, ticks <-chan venue.RawQuote) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			s.writeWS(tokenID, tick)
		}
	}
}

// writeWS applies a WS tick with last-writer-wins semantics on (token,
// observation_ts): a tick older than what is already stored is discarded.
func (s *Source) writeWS(tokenID string, tick venue.RawQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ws[tokenID]
	if ok && !tick.Timestamp.After(existing.ObservedAt) {
		return
	}

	s.ws[tokenID] = Quote{
		TokenID:    tokenID,
		BestBid:    tick.BestBid,
		BestAsk:    tick.BestAsk,
		Mid:        (tick.BestBid + tick.BestAsk) / 2,
		AskSize:    tick.AskSize,
		Source:     SourceWS,
		ObservedAt: tick.Timestamp,
	}
}

// Get returns the freshest available quote, preferring WS.
func (s *Source) Get(ctx context.Context, tokenID string) (Quote, error) {
	s.mu.RLock()
	wsQuote, ok := s.ws[tokenID]
	s.mu.RUnlock()

	if ok && wsQuote.AgeMs(time.Now()) <= s.wsMaxAge.Milliseconds() {
		return wsQuote, nil
	}

	return s.getREST(ctx, tokenID)
}

// GetREST forces a REST fetch, bypassing any WS quote; used for entry-time
// cross-checks against the streaming price.
func (s *Source) GetREST(ctx context.Context, tokenID string) (Quote, error) {
	return s.getREST(ctx, tokenID)
}

func (s *Source) getREST(ctx context.Context, tokenID string) (Quote, error) {
	book, err := s.rest.GetOrderbook(ctx, tokenID)
	if err != nil {
		log.Warn().Err(err).Str("token", tokenID).Msg("rest orderbook fetch failed")
		return Quote{}, fmt.Errorf("rest quote for %s: %w", tokenID, err)
	}
	return Quote{
		TokenID:    tokenID,
		BestBid:    book.BestBid,
		BestAsk:    book.BestAsk,
		Mid:        (book.BestBid + book.BestAsk) / 2,
		AskSize:    book.SizeAsk,
		Source:     SourceREST,
		ObservedAt: time.Now(),
	}, nil
}
