package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sportsedge/internal/costs"
	"github.com/sawpanic/sportsedge/internal/quote"
	"github.com/sawpanic/sportsedge/internal/venue"
)

type stubQuotes struct {
	q   quote.Quote
	err error
}

func (s *stubQuotes) Get(ctx context.Context, tokenID string) (quote.Quote, error) {
	return s.q, s.err
}

type stubStatus struct {
	status venue.MarketStatus
	err    error
}

func (s *stubStatus) GetMarketStatus(ctx context.Context, marketID string) (venue.MarketStatus, error) {
	return s.status, s.err
}

type recordingBalance struct {
	stake, net float64
	calls      int
}

func (b *recordingBalance) ReleaseStakeAndRealize(stake, net float64) {
	b.stake, b.net = stake, net
	b.calls++
}

type recordingExposure struct {
	released []string
}

func (e *recordingExposure) Release(now time.Time, positionID string, realizedNet float64) {
	e.released = append(e.released, positionID)
}

type recordingSubs struct {
	ended []string
}

func (s *recordingSubs) EndSubscription(tokenID string) {
	s.ended = append(s.ended, tokenID)
}

type stubHealth struct{ score float64 }

func (h stubHealth) Score() float64 { return h.score }

func bidQuote(bid float64) quote.Quote {
	return quote.Quote{
		BestBid:    bid,
		BestAsk:    bid + 0.02,
		Mid:        bid + 0.01,
		Source:     quote.SourceREST,
		ObservedAt: time.Now(),
	}
}

func openPosition(t *testing.T, store *Store) *Position {
	t.Helper()
	p := &Position{
		ID:             "pos-1",
		MarketID:       "mkt-1",
		TokenID:        "tok-1",
		Sport:          "nba",
		Side:           venue.SideYes,
		Stake:          5.0,
		EntryPrice:     0.60,
		EntrySize:      5.0 / 0.60,
		StopPrice:      0.30,
		TakePrice:      0.78,
		OpenedAt:       time.Now(),
		EntryLiquidity: 10000,
	}
	require.NoError(t, store.Open(p))
	return p
}

type managerRig struct {
	manager  *Manager
	store    *Store
	quotes   *stubQuotes
	status   *stubStatus
	balance  *recordingBalance
	exposure *recordingExposure
	subs     *recordingSubs
	health   *stubHealth
}

func newManagerRig(cfg Config) *managerRig {
	if cfg.MaxPositionAge == 0 {
		cfg.MaxPositionAge = time.Hour
	}
	if cfg.FlattenAfterBadFeed == 0 {
		cfg.FlattenAfterBadFeed = time.Minute
	}
	if cfg.FlattenThreshold == 0 {
		cfg.FlattenThreshold = 0.35
	}

	rig := &managerRig{
		store:    NewStore(),
		quotes:   &stubQuotes{q: bidQuote(0.60)},
		status:   &stubStatus{status: venue.MarketStatus{Status: venue.StatusActive}},
		balance:  &recordingBalance{},
		exposure: &recordingExposure{},
		subs:     &recordingSubs{},
		health:   &stubHealth{score: 1.0},
	}
	rig.manager = NewManager(cfg, rig.store, rig.quotes, rig.status, rig.balance, rig.exposure, rig.subs, rig.health)
	return rig
}

func TestStopLossClosesAtMarkEqualToStop(t *testing.T) {
	rig := newManagerRig(Config{})
	p := openPosition(t, rig.store)
	rig.quotes.q = bidQuote(0.30) // mark == stop closes

	rig.manager.Tick(context.Background())

	assert.Equal(t, StateClosed, p.State)
	assert.Equal(t, ReasonStopLoss, p.ExitReason)
	assert.Equal(t, 0.30, p.ExitPrice)
	assert.False(t, rig.store.HasOpen("mkt-1"))
	assert.Equal(t, []string{"tok-1"}, rig.subs.ended)
}

func TestTakeProfitRealizesNetPnL(t *testing.T) {
	cost := costs.DefaultModel()
	rig := newManagerRig(Config{CostModel: cost})
	p := openPosition(t, rig.store)
	rig.quotes.q = bidQuote(0.79)

	rig.manager.Tick(context.Background())

	require.Equal(t, ReasonTakeProfit, p.ExitReason)
	assert.Equal(t, 0.79, p.ExitPrice)

	wantGross := p.EntrySize * (0.79 - 0.60)
	assert.InDelta(t, wantGross, p.RealizedGrossPnL, 0.01)
	roundTrip := cost.RoundTripCosts(p.EntryLiquidity, p.EntryLiquidity, p.Stake, 0.79*p.EntrySize)
	assert.InDelta(t, wantGross-roundTrip, p.RealizedNetPnL, 0.01)

	require.Equal(t, 1, rig.balance.calls)
	assert.Equal(t, p.Stake, rig.balance.stake)
	assert.Equal(t, p.RealizedNetPnL, rig.balance.net)
	assert.Equal(t, []string{"pos-1"}, rig.exposure.released)
}

func TestMaxAgeFlatten(t *testing.T) {
	rig := newManagerRig(Config{MaxPositionAge: time.Minute})
	p := openPosition(t, rig.store)
	p.OpenedAt = time.Now().Add(-2 * time.Minute)
	rig.quotes.q = bidQuote(0.60) // between stop and take

	rig.manager.Tick(context.Background())

	assert.Equal(t, ReasonMaxAge, p.ExitReason)
}

func TestBadFeedFlattenAfterSustainedWindow(t *testing.T) {
	rig := newManagerRig(Config{FlattenAfterBadFeed: 30 * time.Millisecond})
	p := openPosition(t, rig.store)
	rig.health.score = 0.1
	rig.quotes.q = bidQuote(0.60)

	rig.manager.Tick(context.Background())
	assert.Equal(t, StateOpen, p.State, "flatten only after the window elapses")

	time.Sleep(40 * time.Millisecond)
	rig.manager.Tick(context.Background())
	assert.Equal(t, ReasonFeedDegraded, p.ExitReason)
}

func TestFeedRecoveryResetsFlattenTimer(t *testing.T) {
	rig := newManagerRig(Config{FlattenAfterBadFeed: 30 * time.Millisecond})
	p := openPosition(t, rig.store)
	rig.quotes.q = bidQuote(0.60)

	rig.health.score = 0.1
	rig.manager.Tick(context.Background())
	time.Sleep(40 * time.Millisecond)

	rig.health.score = 0.9 // recovered before this tick
	rig.manager.Tick(context.Background())
	assert.Equal(t, StateOpen, p.State)
}

func TestMarketResolvedClosesAtResolutionPrice(t *testing.T) {
	rig := newManagerRig(Config{})
	p := openPosition(t, rig.store)
	rig.quotes.err = errors.New("no book for resolved market")
	rig.status.status = venue.MarketStatus{Status: venue.StatusResolved, Outcome: 1.0}

	rig.manager.Tick(context.Background())

	assert.Equal(t, ReasonMarketResolved, p.ExitReason)
	assert.Equal(t, 1.0, p.ExitPrice)
}

func TestMarketResolvedNoSideGetsInvertedOutcome(t *testing.T) {
	rig := newManagerRig(Config{})
	p := openPosition(t, rig.store)
	p.Side = venue.SideNo
	rig.quotes.err = errors.New("no book")
	rig.status.status = venue.MarketStatus{Status: venue.StatusResolved, Outcome: 1.0}

	rig.manager.Tick(context.Background())

	assert.Equal(t, ReasonMarketResolved, p.ExitReason)
	assert.Equal(t, 0.0, p.ExitPrice)
}

func TestStopBeatsResolvedWhenBothApply(t *testing.T) {
	rig := newManagerRig(Config{})
	p := openPosition(t, rig.store)
	rig.quotes.q = bidQuote(0.20)
	rig.status.status = venue.MarketStatus{Status: venue.StatusResolved, Outcome: 0.0}

	rig.manager.Tick(context.Background())

	assert.Equal(t, ReasonStopLoss, p.ExitReason, "quote-based rules evaluate first")
}

func TestQuoteAndStatusErrorsRetryNextTick(t *testing.T) {
	rig := newManagerRig(Config{})
	p := openPosition(t, rig.store)
	rig.quotes.err = errors.New("timeout")
	rig.status.err = errors.New("timeout")

	rig.manager.Tick(context.Background())

	assert.Equal(t, StateOpen, p.State)
	assert.True(t, rig.store.HasOpen("mkt-1"))
}

func TestOnCloseCallbackFires(t *testing.T) {
	rig := newManagerRig(Config{})
	p := openPosition(t, rig.store)
	rig.quotes.q = bidQuote(0.79)

	var got *Position
	rig.manager.OnClose(func(closed *Position) { got = closed })
	rig.manager.Tick(context.Background())

	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, StateClosed, got.State)
}

func TestDuplicateOpenRejected(t *testing.T) {
	store := NewStore()
	openPosition(t, store)

	dup := &Position{ID: "pos-2", MarketID: "mkt-1", TokenID: "tok-1"}
	err := store.Open(dup)
	assert.Error(t, err)
}
