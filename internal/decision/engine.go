package decision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/config"
	"github.com/sawpanic/sportsedge/internal/costs"
	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/feedhealth"
	"github.com/sawpanic/sportsedge/internal/models"
	"github.com/sawpanic/sportsedge/internal/money"
	"github.com/sawpanic/sportsedge/internal/position"
	"github.com/sawpanic/sportsedge/internal/quote"
	"github.com/sawpanic/sportsedge/internal/risk"
	"github.com/sawpanic/sportsedge/internal/venue"

	bal "github.com/sawpanic/sportsedge/internal/balance"
)

// minStake is the smallest admissible stake in dollars.
const minStake = 1.0

// MarketResolver maps a fixture to its active binary winner market; satisfied
// by *market.Resolver.
type MarketResolver interface {
	Resolve(ctx context.Context, fixtureID, homeTeam, awayTeam string) (venue.Market, bool, error)
}

// QuoteSource supplies quotes with WS-preferred sourcing plus a forced REST
// path for cross-checks; satisfied by *quote.Source.
type QuoteSource interface {
	Get(ctx context.Context, tokenID string) (quote.Quote, error)
	GetREST(ctx context.Context, tokenID string) (quote.Quote, error)
	EnsureSubscription(ctx context.Context, tokenID string) error
}

// Engine consumes ScoreEvents and runs each through the ordered entry gate
// pipeline, opening a risk-sized position when every gate passes.
type Engine struct {
	cfg config.Config

	fixtures    FixtureLookup
	persister   EventPersister
	pnl         OpenPnLProvider
	feedHealth  *feedhealth.Monitor
	resolver    MarketResolver
	quotes      QuoteSource
	riskBook    *risk.Book
	positions   *position.Store
	balance     *bal.Tracker
	costModel   costs.Model
	calibrator  *models.Calibrator
	orderPlacer venue.OrderPlacer

	newID func() string
	now   func() time.Time
}

// New wires the Engine to its collaborators.
func New(
	cfg config.Config,
	fixtures FixtureLookup,
	persister EventPersister,
	pnl OpenPnLProvider,
	feedHealth *feedhealth.Monitor,
	resolver MarketResolver,
	quotes QuoteSource,
	riskBook *risk.Book,
	positions *position.Store,
	balance *bal.Tracker,
	costModel costs.Model,
	calibrator *models.Calibrator,
	orderPlacer venue.OrderPlacer,
) *Engine {
	return &Engine{
		cfg:         cfg,
		fixtures:    fixtures,
		persister:   persister,
		pnl:         pnl,
		feedHealth:  feedHealth,
		resolver:    resolver,
		quotes:      quotes,
		riskBook:    riskBook,
		positions:   positions,
		balance:     balance,
		costModel:   costModel,
		calibrator:  calibrator,
		orderPlacer: orderPlacer,
		newID:       func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func drop(reason Reason, detail string) Outcome {
	return Outcome{Accepted: false, Reason: reason, Detail: detail}
}

// sideQuote is one token's quote plus its WS/REST cross-check result.
type sideQuote struct {
	q          quote.Quote
	divergence float64 // |ws_mid - rest_mid|, 0 unless the chosen source was WS with a usable REST mid
	err        error
}

// Process runs one ScoreEvent through the full pipeline. The event is
// persisted unconditionally first; then every gate is evaluated in order and
// the first failure drops the event with its reason code. Nothing is retried.
func (e *Engine) Process(ctx context.Context, ev feed.ScoreEvent) (Outcome, error) {
	if err := e.persister.SaveScoreEvent(ev); err != nil {
		return Outcome{}, fmt.Errorf("persist score event %s: %w", ev.ID, err)
	}

	if ev.Kind == feed.KindScoreCorrection {
		return drop(ReasonScoreCorrection, "corrections do not open positions"), nil
	}

	if e.feedHealth.PauseNewEntries() {
		return drop(ReasonPaused, "feed health monitor is pausing new entries"), nil
	}

	now := e.now()
	if ageMs := now.Sub(clampTime(ev.Timestamp)).Milliseconds(); ageMs > int64(e.cfg.MaxEventAgeMs) {
		return drop(ReasonStaleEvent, fmt.Sprintf("event age %dms exceeds max_event_age_ms", ageMs)), nil
	}

	fixture, ok := e.fixtures.Fixture(ev.FixtureID)
	if !ok {
		return drop(ReasonNoMarket, "fixture unknown to aggregator"), nil
	}

	rawModel := models.ForSport(fixture.Sport)
	pRawPrev := models.Clamp(rawModel(ev.PrevState))
	pRawNew := models.Clamp(rawModel(ev.NewState))
	pCalPrev := e.calibrator.Apply(fixture.Sport, pRawPrev)
	pCalNew := e.calibrator.Apply(fixture.Sport, pRawNew)
	absShift := pCalNew - pCalPrev
	if absShift < 0 {
		absShift = -absShift
	}

	threshold := e.shiftThreshold(fixture.Sport)
	if ev.ConsensusCount <= 1 {
		threshold *= e.cfg.WeakConsensusFactor
	}
	threshold = e.feedHealth.AdaptiveShiftThreshold(threshold)
	if absShift < threshold {
		return drop(ReasonInsufficientShift, fmt.Sprintf("shift %.4f below threshold %.4f", absShift, threshold)), nil
	}

	m, found, err := e.resolver.Resolve(ctx, ev.FixtureID, fixture.HomeTeam, fixture.AwayTeam)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve market for fixture %s: %w", ev.FixtureID, err)
	}
	if !found {
		return drop(ReasonNoMarket, "no active binary winner market found"), nil
	}

	yes, no := e.fetchBothSides(ctx, m.YesTokenID, m.NoTokenID)
	if yes.err != nil {
		return drop(ReasonQuoteUnavailable, yes.err.Error()), nil
	}
	if no.err != nil {
		return drop(ReasonQuoteUnavailable, no.err.Error()), nil
	}
	e.feedHealth.Observe(yes.q.Source == quote.SourceREST, float64(yes.q.AgeMs(now)))
	e.feedHealth.Observe(no.q.Source == quote.SourceREST, float64(no.q.AgeMs(now)))

	pYes := pCalNew
	if !m.YesIsHome {
		pYes = 1 - pCalNew
	}
	pNo := 1 - pYes

	edgeYes, okYes := priceEdge(pYes, yes.q.BestAsk)
	edgeNo, okNo := priceEdge(pNo, no.q.BestAsk)
	if !okYes && !okNo {
		return drop(ReasonQuoteUnavailable, "no side has a usable ask price"), nil
	}

	side, chosen, p, edge := pickSide(edgeYes, okYes, edgeNo, okNo, yes, no, pYes, pNo)

	adaptiveDivergence := e.feedHealth.AdaptiveDivergence(e.cfg.MaxEntryQuoteDivergence)
	if chosen.divergence > adaptiveDivergence {
		return drop(ReasonDivergence, fmt.Sprintf("ws/rest divergence %.4f exceeds %.4f", chosen.divergence, adaptiveDivergence)), nil
	}

	askPrice := chosen.q.BestAsk
	entryCost := e.costModel.EntryCosts(chosen.q.BestBid, askPrice, m.Liquidity)
	netEdge := edge - entryCost
	adaptiveMinEdge := e.feedHealth.AdaptiveMinEdge(e.cfg.MinEdge)
	if netEdge < adaptiveMinEdge {
		return drop(ReasonNetEdgeTooLow, fmt.Sprintf("net edge %.4f below %.4f", netEdge, adaptiveMinEdge)), nil
	}

	f := kellyFraction(p, askPrice, e.cfg.KellyFraction)
	available := e.balance.Available()
	rawStake := money.Round2(f * available)
	stake, ok := clampStake(rawStake, minStake, available)
	if !ok {
		if rawStake < minStake {
			return drop(ReasonStakeTooSmall, fmt.Sprintf("sized stake %.2f below minimum %.2f", rawStake, minStake)), nil
		}
		return drop(ReasonInsufficientBalance, fmt.Sprintf("sized stake %.2f exceeds available %.2f", rawStake, available)), nil
	}

	team := fixture.HomeTeam
	if (side == venue.SideYes) != m.YesIsHome {
		team = fixture.AwayTeam
	}

	pYesRaw := pRawNew
	if !m.YesIsHome {
		pYesRaw = 1 - pRawNew
	}
	pSideRaw := pYesRaw
	if side == venue.SideNo {
		pSideRaw = 1 - pYesRaw
	}

	if e.positions.HasOpen(m.ID) {
		return drop(ReasonDuplicatePosition, fmt.Sprintf("market %s already has an open position", m.ID)), nil
	}

	admitted, rejectReason := e.riskBook.CanAdmit(now, string(fixture.Sport), team, stake, e.pnl.OpenMarkedPnL())
	if !admitted {
		return drop(ReasonRiskRejected, string(rejectReason)), nil
	}

	tokenID := m.YesTokenID
	if side == venue.SideNo {
		tokenID = m.NoTokenID
	}

	e.balance.ReserveStake(stake)

	size := stake / askPrice
	result, err := e.orderPlacer.PlaceOrder(ctx, m.ID, side, askPrice, size)
	if err != nil {
		e.balance.ReleaseReservation(stake)
		return drop(ReasonOrderFailed, err.Error()), nil
	}

	actualStake := money.Stake(result.FilledSize, result.FilledPrice)
	if actualStake < stake {
		e.balance.ReleaseReservation(stake - actualStake)
	}
	if !result.Complete {
		log.Warn().Str("market", m.ID).Float64("requested", size).Float64("filled", result.FilledSize).
			Msg("partial fill accepted, not retried")
	}

	pos := &position.Position{
		ID:               e.newID(),
		MarketID:         m.ID,
		TokenID:          tokenID,
		Sport:            string(fixture.Sport),
		Side:             side,
		Stake:            actualStake,
		EntryPrice:       result.FilledPrice,
		EntrySize:        result.FilledSize,
		StopPrice:        stopPrice(result.FilledPrice, e.cfg.StopLossFraction),
		TakePrice:        takePrice(result.FilledPrice, e.cfg.TakeProfitFraction),
		OpenedAt:         now,
		EntryQuoteSource: chosen.q.Source,
		EntryQuoteAgeMs:  chosen.q.AgeMs(now),
		EntryRawProb:     pSideRaw,
		EntryCalibProb:   p,
		EntryLiquidity:   m.Liquidity,
	}

	if err := e.positions.Open(pos); err != nil {
		e.balance.ReleaseReservation(actualStake)
		return drop(ReasonDuplicatePosition, err.Error()), nil
	}

	e.riskBook.Admit(now, risk.Exposure{
		PositionID: pos.ID,
		MarketID:   m.ID,
		Sport:      string(fixture.Sport),
		Team:       team,
		Stake:      actualStake,
	})

	if err := e.quotes.EnsureSubscription(ctx, tokenID); err != nil {
		log.Warn().Err(err).Str("token", tokenID).Msg("failed to start ws subscription for new position")
	}

	return Outcome{Accepted: true, Position: pos}, nil
}

// priceEdge is the value ratio of holding a side at its displayed ask:
// p/ask - 1. Positive means the side pays more often than its price implies.
func priceEdge(p, ask float64) (float64, bool) {
	if ask <= 0 || ask >= 1 {
		return 0, false
	}
	return p/ask - 1, true
}

// pickSide selects the larger-edge side. On a tie the side showing more
// displayed ask size wins, then YES.
func pickSide(edgeYes float64, okYes bool, edgeNo float64, okNo bool, yes, no sideQuote, pYes, pNo float64) (venue.OrderSide, sideQuote, float64, float64) {
	switch {
	case okYes && !okNo:
		return venue.SideYes, yes, pYes, edgeYes
	case okNo && !okYes:
		return venue.SideNo, no, pNo, edgeNo
	case edgeYes > edgeNo:
		return venue.SideYes, yes, pYes, edgeYes
	case edgeNo > edgeYes:
		return venue.SideNo, no, pNo, edgeNo
	case no.q.AskSize > yes.q.AskSize:
		return venue.SideNo, no, pNo, edgeNo
	default:
		return venue.SideYes, yes, pYes, edgeYes
	}
}

// fetchBothSides fetches preferred quotes for both tokens in parallel, each
// paired with a concurrent REST cross-check. A side's divergence is only
// populated when its preferred quote came from WS and the REST mid was usable.
func (e *Engine) fetchBothSides(ctx context.Context, yesToken, noToken string) (sideQuote, sideQuote) {
	var wg sync.WaitGroup
	var yes, no sideQuote
	wg.Add(2)
	go func() {
		defer wg.Done()
		yes = e.fetchSide(ctx, yesToken)
	}()
	go func() {
		defer wg.Done()
		no = e.fetchSide(ctx, noToken)
	}()
	wg.Wait()
	return yes, no
}

func (e *Engine) fetchSide(ctx context.Context, tokenID string) sideQuote {
	var (
		wg            sync.WaitGroup
		q, restQ      quote.Quote
		qErr, restErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		q, qErr = e.quotes.Get(ctx, tokenID)
	}()
	go func() {
		defer wg.Done()
		restQ, restErr = e.quotes.GetREST(ctx, tokenID)
	}()
	wg.Wait()

	if qErr != nil {
		return sideQuote{err: fmt.Errorf("quote unavailable for %s: %w", tokenID, qErr)}
	}

	out := sideQuote{q: q}
	if q.Source == quote.SourceWS && restErr == nil && restQ.Mid > 0 {
		d := q.Mid - restQ.Mid
		if d < 0 {
			d = -d
		}
		out.divergence = d
	}
	return out
}

func (e *Engine) shiftThreshold(sport models.Sport) float64 {
	switch sport {
	case models.Soccer:
		return e.cfg.ShiftThreshold.Soccer
	case models.NFL:
		return e.cfg.ShiftThreshold.NFL
	case models.NBA:
		return e.cfg.ShiftThreshold.NBA
	case models.MLB:
		return e.cfg.ShiftThreshold.MLB
	case models.NHL:
		return e.cfg.ShiftThreshold.NHL
	case models.Tennis:
		return e.cfg.ShiftThreshold.Tennis
	default:
		return e.cfg.ShiftThreshold.Soccer
	}
}

// stopPrice and takePrice derive exit thresholds from the entry fill price,
// clamped to stay inside the valid (0,1) price range for a binary contract.
func stopPrice(entry, stopLossFraction float64) float64 {
	p := entry * (1 - stopLossFraction)
	if p < 0.01 {
		p = 0.01
	}
	return money.Round2(p)
}

func takePrice(entry, takeProfitFraction float64) float64 {
	p := entry * (1 + takeProfitFraction)
	if p > 0.99 {
		p = 0.99
	}
	return money.Round2(p)
}
