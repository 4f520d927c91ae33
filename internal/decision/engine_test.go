package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bal "github.com/sawpanic/sportsedge/internal/balance"
	"github.com/sawpanic/sportsedge/internal/config"
	"github.com/sawpanic/sportsedge/internal/costs"
	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/feedhealth"
	"github.com/sawpanic/sportsedge/internal/models"
	"github.com/sawpanic/sportsedge/internal/position"
	"github.com/sawpanic/sportsedge/internal/quote"
	"github.com/sawpanic/sportsedge/internal/risk"
	"github.com/sawpanic/sportsedge/internal/venue"
)

type fakeFixtures map[string]feed.Fixture

func (f fakeFixtures) Fixture(id string) (feed.Fixture, bool) {
	fx, ok := f[id]
	return fx, ok
}

type capturePersister struct {
	events []feed.ScoreEvent
}

func (c *capturePersister) SaveScoreEvent(ev feed.ScoreEvent) error {
	c.events = append(c.events, ev)
	return nil
}

type fixedPnL float64

func (f fixedPnL) OpenMarkedPnL() float64 { return float64(f) }

type fakeResolver struct {
	market venue.Market
	found  bool
	err    error
}

func (r *fakeResolver) Resolve(ctx context.Context, fixtureID, home, away string) (venue.Market, bool, error) {
	return r.market, r.found, r.err
}

type fakeQuotes struct {
	preferred map[string]quote.Quote
	rest      map[string]quote.Quote
	subs      []string
}

func (q *fakeQuotes) Get(ctx context.Context, tokenID string) (quote.Quote, error) {
	if qt, ok := q.preferred[tokenID]; ok {
		return qt, nil
	}
	return quote.Quote{}, errors.New("no quote")
}

func (q *fakeQuotes) GetREST(ctx context.Context, tokenID string) (quote.Quote, error) {
	if qt, ok := q.rest[tokenID]; ok {
		return qt, nil
	}
	if qt, ok := q.preferred[tokenID]; ok {
		return qt, nil
	}
	return quote.Quote{}, errors.New("no quote")
}

func (q *fakeQuotes) EnsureSubscription(ctx context.Context, tokenID string) error {
	q.subs = append(q.subs, tokenID)
	return nil
}

type fakeOrders struct {
	err    error
	placed int
}

func (o *fakeOrders) PlaceOrder(ctx context.Context, marketID string, side venue.OrderSide, price, size float64) (venue.OrderResult, error) {
	if o.err != nil {
		return venue.OrderResult{}, o.err
	}
	o.placed++
	return venue.OrderResult{FilledPrice: price, FilledSize: size, Complete: true}, nil
}

// healthyMonitor returns a monitor pinned at quality 1.0 so every adaptive
// gate sits exactly at its configured baseline.
func healthyMonitor() *feedhealth.Monitor {
	m := feedhealth.New(feedhealth.Config{
		Alpha:           0, // freeze EWMAs after the first observation
		PauseThreshold:  0.35,
		SustainedWindow: time.Minute,
		CooldownAfter:   time.Minute,
		WSAgeNormMs:     5000,
	})
	m.Observe(false, 0)
	return m
}

func pausedMonitor() *feedhealth.Monitor {
	m := feedhealth.New(feedhealth.Config{
		Alpha:           0,
		PauseThreshold:  0.35,
		SustainedWindow: 0,
		CooldownAfter:   time.Minute,
		WSAgeNormMs:     5000,
	})
	m.Observe(true, 10000)
	return m
}

type testRig struct {
	engine    *Engine
	persister *capturePersister
	quotes    *fakeQuotes
	orders    *fakeOrders
	balance   *bal.Tracker
	store     *position.Store
}

func restQuote(token string, bid, ask, size float64) quote.Quote {
	return quote.Quote{
		TokenID:    token,
		BestBid:    bid,
		BestAsk:    ask,
		Mid:        (bid + ask) / 2,
		AskSize:    size,
		Source:     quote.SourceREST,
		ObservedAt: time.Now(),
	}
}

func nbaMarket(yesIsHome bool) venue.Market {
	return venue.Market{
		ID:         "mkt-1",
		Title:      "Celtics vs Knicks Winner",
		YesTokenID: "tok-yes",
		NoTokenID:  "tok-no",
		FixtureID:  "fix-1",
		YesIsHome:  yesIsHome,
		Liquidity:  10000,
		Status:     venue.MarketStatus{Status: venue.StatusActive},
	}
}

func newRig(t *testing.T, opts ...func(*testRig, *config.Config, *fakeResolver)) *testRig {
	t.Helper()

	cfg := config.Default()
	rig := &testRig{
		persister: &capturePersister{},
		quotes: &fakeQuotes{
			preferred: map[string]quote.Quote{
				"tok-yes": restQuote("tok-yes", 0.58, 0.60, 500),
				"tok-no":  restQuote("tok-no", 0.38, 0.42, 500),
			},
			rest: map[string]quote.Quote{},
		},
		orders:  &fakeOrders{},
		balance: bal.New(cfg.InitialBalance),
		store:   position.NewStore(),
	}
	resolver := &fakeResolver{market: nbaMarket(true), found: true}

	for _, opt := range opts {
		opt(rig, &cfg, resolver)
	}

	fixtures := fakeFixtures{
		"fix-1": {
			ID:       "fix-1",
			Sport:    models.NBA,
			HomeTeam: "Celtics",
			AwayTeam: "Knicks",
		},
	}

	rig.engine = New(
		cfg, fixtures, rig.persister, fixedPnL(0),
		healthyMonitor(), resolver, rig.quotes,
		risk.NewBook(cfg.Risk, risk.NewMatrix()), rig.store, rig.balance,
		costs.DefaultModel(), models.NewCalibrator(), rig.orders,
	)
	return rig
}

func nbaEvent(consensus int) feed.ScoreEvent {
	return feed.ScoreEvent{
		ID:        "ev-1",
		FixtureID: "fix-1",
		Kind:      feed.KindBasketHome,
		PrevState: models.GameState{Sport: models.NBA, ScoreHome: 98, ScoreAway: 97, SecondsRemaining: 30},
		NewState:  models.GameState{Sport: models.NBA, ScoreHome: 101, ScoreAway: 97, SecondsRemaining: 25},
		Timestamp: time.Now(),
		Provider:  "fastscore",

		ConsensusCount: consensus,
	}
}

func TestBasketFlipsFavoriteOpensPosition(t *testing.T) {
	rig := newRig(t)

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	require.True(t, outcome.Accepted, "detail: %s reason: %s", outcome.Detail, outcome.Reason)

	p := outcome.Position
	require.NotNil(t, p)
	assert.Equal(t, venue.SideYes, p.Side)
	assert.Equal(t, "tok-yes", p.TokenID)
	assert.Equal(t, 0.60, p.EntryPrice)
	assert.Equal(t, 0.30, p.StopPrice)
	assert.Equal(t, 0.78, p.TakePrice)
	assert.InDelta(t, p.Stake, p.EntrySize*p.EntryPrice, 1e-6)
	assert.Greater(t, p.TakePrice, p.EntryPrice)
	assert.Less(t, p.StopPrice, p.EntryPrice)
	assert.LessOrEqual(t, p.TakePrice, 0.99)

	assert.True(t, rig.store.HasOpen("mkt-1"))
	assert.InDelta(t, 100.0-p.Stake, rig.balance.Available(), 1e-6)
	assert.Contains(t, rig.quotes.subs, "tok-yes")
	assert.Len(t, rig.persister.events, 1)
}

func TestYesIsHomeFalseSwapsSides(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		res.market = nbaMarket(false)
		// the NO token now backs the surging home team; give it the rich ask
		r.quotes.preferred["tok-no"] = restQuote("tok-no", 0.58, 0.60, 500)
		r.quotes.preferred["tok-yes"] = restQuote("tok-yes", 0.38, 0.42, 500)
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	require.True(t, outcome.Accepted, "detail: %s", outcome.Detail)
	assert.Equal(t, venue.SideNo, outcome.Position.Side)
	assert.Equal(t, "tok-no", outcome.Position.TokenID)
}

func TestScoreCorrectionPersistedButNotTraded(t *testing.T) {
	rig := newRig(t)

	ev := nbaEvent(2)
	ev.Kind = feed.KindScoreCorrection

	outcome, err := rig.engine.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, ReasonScoreCorrection, outcome.Reason)
	assert.Len(t, rig.persister.events, 1, "corrections are still persisted")
	assert.False(t, rig.store.HasOpen("mkt-1"))
}

func TestPausedFeedDropsEvents(t *testing.T) {
	rig := newRig(t)
	rig.engine.feedHealth = pausedMonitor()

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonPaused, outcome.Reason)
}

func TestStaleEventDropped(t *testing.T) {
	rig := newRig(t)

	ev := nbaEvent(2)
	ev.Timestamp = time.Now().Add(-time.Minute)

	outcome, err := rig.engine.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ReasonStaleEvent, outcome.Reason)
}

func TestInsufficientShiftDropped(t *testing.T) {
	rig := newRig(t)

	ev := nbaEvent(1)
	// a single early-game point barely moves the model
	ev.PrevState = models.GameState{Sport: models.NBA, ScoreHome: 10, ScoreAway: 10, SecondsRemaining: 2800}
	ev.NewState = models.GameState{Sport: models.NBA, ScoreHome: 11, ScoreAway: 10, SecondsRemaining: 2790}

	outcome, err := rig.engine.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficientShift, outcome.Reason)
}

func TestWeakConsensusRaisesShiftThreshold(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		cfg.ShiftThreshold.NBA = 0.20
		cfg.WeakConsensusFactor = 10
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(1))
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficientShift, outcome.Reason,
		"single-provider events face a multiplied threshold")
}

func TestWSRestDivergenceRejected(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		ws := restQuote("tok-yes", 0.61, 0.63, 500)
		ws.Source = quote.SourceWS
		ws.Mid = 0.62
		r.quotes.preferred["tok-yes"] = ws
		r.quotes.rest["tok-yes"] = restQuote("tok-yes", 0.54, 0.56, 500) // mid 0.55
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonDivergence, outcome.Reason)
	assert.Contains(t, outcome.Detail, "0.0700")
}

func TestNetEdgeBelowThresholdRejected(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		// asks priced close to fair value on both sides leave no edge
		r.quotes.preferred["tok-yes"] = restQuote("tok-yes", 0.85, 0.87, 500)
		r.quotes.preferred["tok-no"] = restQuote("tok-no", 0.12, 0.14, 500)
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonNetEdgeTooLow, outcome.Reason)
}

func TestStakeBelowMinimumRejected(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		r.balance = bal.New(2.0)
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonStakeTooSmall, outcome.Reason)
}

func TestRiskCapRejection(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		cfg.Risk.PerEventCap = 5
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonRiskRejected, outcome.Reason)
	assert.Equal(t, string(risk.RejectEventCap), outcome.Detail)
}

func TestReplayedEventRejectedAsDuplicate(t *testing.T) {
	rig := newRig(t)

	first, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, ReasonDuplicatePosition, second.Reason)
}

func TestOrderFailureLeavesBalanceUntouched(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		r.orders.err = errors.New("venue 503")
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonOrderFailed, outcome.Reason)
	assert.Equal(t, 100.0, rig.balance.Available())
	assert.False(t, rig.store.HasOpen("mkt-1"))
}

func TestNoMarketFoundDropsEvent(t *testing.T) {
	rig := newRig(t, func(r *testRig, cfg *config.Config, res *fakeResolver) {
		res.found = false
	})

	outcome, err := rig.engine.Process(context.Background(), nbaEvent(2))
	require.NoError(t, err)
	assert.Equal(t, ReasonNoMarket, outcome.Reason)
}

func TestPriceEdge(t *testing.T) {
	edge, ok := priceEdge(0.74, 0.60)
	require.True(t, ok)
	assert.InDelta(t, 0.2333, edge, 1e-3)

	_, ok = priceEdge(0.5, 0)
	assert.False(t, ok)
	_, ok = priceEdge(0.5, 1)
	assert.False(t, ok)
}

func TestPickSidePrefersLargerEdgeThenSizeThenYes(t *testing.T) {
	yes := sideQuote{q: quote.Quote{AskSize: 100}}
	no := sideQuote{q: quote.Quote{AskSize: 200}}

	side, _, _, _ := pickSide(0.2, true, 0.1, true, yes, no, 0.7, 0.3)
	assert.Equal(t, venue.SideYes, side)

	side, _, _, _ = pickSide(0.1, true, 0.2, true, yes, no, 0.7, 0.3)
	assert.Equal(t, venue.SideNo, side)

	side, _, _, _ = pickSide(0.2, true, 0.2, true, yes, no, 0.7, 0.3)
	assert.Equal(t, venue.SideNo, side, "tied edge goes to the deeper ask")

	equalSize := sideQuote{q: quote.Quote{AskSize: 100}}
	side, _, _, _ = pickSide(0.2, true, 0.2, true, equalSize, equalSize, 0.7, 0.3)
	assert.Equal(t, venue.SideYes, side, "full tie defaults to YES")
}
