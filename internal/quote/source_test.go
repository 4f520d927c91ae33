package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sportsedge/internal/venue"
)

type stubBooks struct {
	book  venue.OrderBook
	err   error
	calls int
}

func (s *stubBooks) GetOrderbook(ctx context.Context, tokenID string) (venue.OrderBook, error) {
	s.calls++
	return s.book, s.err
}

type stubStreamer struct{}

func (stubStreamer) Subscribe(ctx context.Context, tokenID string) (<-chan venue.RawQuote, error) {
	ch := make(chan venue.RawQuote)
	return ch, nil
}
func (stubStreamer) Unsubscribe(tokenID string) {}

func TestFreshWSQuotePreferred(t *testing.T) {
	books := &stubBooks{book: venue.OrderBook{BestBid: 0.40, BestAsk: 0.44}}
	s := NewSource(books, stubStreamer{}, 2500*time.Millisecond)

	s.writeWS("tok", venue.RawQuote{TokenID: "tok", BestBid: 0.58, BestAsk: 0.62, Timestamp: time.Now()})

	q, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, SourceWS, q.Source)
	assert.Equal(t, 0.60, q.Mid)
	assert.Equal(t, 0, books.calls)
}

func TestStaleWSQuoteFallsBackToREST(t *testing.T) {
	books := &stubBooks{book: venue.OrderBook{BestBid: 0.40, BestAsk: 0.44, SizeAsk: 750}}
	s := NewSource(books, stubStreamer{}, 2500*time.Millisecond)

	s.writeWS("tok", venue.RawQuote{TokenID: "tok", BestBid: 0.58, BestAsk: 0.62, Timestamp: time.Now().Add(-10 * time.Second)})

	q, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, SourceREST, q.Source)
	assert.InDelta(t, 0.42, q.Mid, 1e-9)
	assert.Equal(t, 750.0, q.AskSize)
	assert.Equal(t, 1, books.calls)
}

func TestRESTErrorSurfaces(t *testing.T) {
	books := &stubBooks{err: errors.New("venue 503")}
	s := NewSource(books, stubStreamer{}, 2500*time.Millisecond)

	_, err := s.Get(context.Background(), "tok")
	assert.Error(t, err)
}

func TestStaleWSWriteDiscarded(t *testing.T) {
	s := NewSource(&stubBooks{}, stubStreamer{}, 2500*time.Millisecond)

	newer := time.Now()
	older := newer.Add(-time.Second)

	s.writeWS("tok", venue.RawQuote{TokenID: "tok", BestBid: 0.50, BestAsk: 0.52, Timestamp: newer})
	s.writeWS("tok", venue.RawQuote{TokenID: "tok", BestBid: 0.10, BestAsk: 0.12, Timestamp: older})

	q, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 0.50, q.BestBid, "older tick must not overwrite newer state")
}

func TestGetRESTBypassesWS(t *testing.T) {
	books := &stubBooks{book: venue.OrderBook{BestBid: 0.40, BestAsk: 0.44}}
	s := NewSource(books, stubStreamer{}, 2500*time.Millisecond)

	s.writeWS("tok", venue.RawQuote{TokenID: "tok", BestBid: 0.58, BestAsk: 0.62, Timestamp: time.Now()})

	q, err := s.GetREST(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, SourceREST, q.Source)
	assert.Equal(t, 1, books.calls)
}

func TestEndSubscriptionDropsCachedQuote(t *testing.T) {
	books := &stubBooks{book: venue.OrderBook{BestBid: 0.40, BestAsk: 0.44}}
	s := NewSource(books, stubStreamer{}, 2500*time.Millisecond)

	require.NoError(t, s.EnsureSubscription(context.Background(), "tok"))
	s.writeWS("tok", venue.RawQuote{TokenID: "tok", BestBid: 0.58, BestAsk: 0.62, Timestamp: time.Now()})
	s.EndSubscription("tok")

	q, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, SourceREST, q.Source, "ws cache is cleared with the subscription")
}
