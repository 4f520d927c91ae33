package position

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/costs"
	"github.com/sawpanic/sportsedge/internal/money"
	"github.com/sawpanic/sportsedge/internal/quote"
	"github.com/sawpanic/sportsedge/internal/venue"
)

// QuoteGetter supplies the WS-preferred quote for a token; satisfied by
// *quote.Source.
type QuoteGetter interface {
	Get(ctx context.Context, tokenID string) (quote.Quote, error)
}

// HealthScorer reports the current feed-quality score in [0,1]; satisfied by
// *feedhealth.Monitor.
type HealthScorer interface {
	Score() float64
}

// BalanceReleaser is the balance-side half of a position close: it frees the
// reserved stake and folds in realized net PnL.
type BalanceReleaser interface {
	ReleaseStakeAndRealize(stake, realizedNet float64)
}

// ExposureReleaser is the risk-book side of a position close.
type ExposureReleaser interface {
	Release(now time.Time, positionID string, realizedNet float64)
}

// SubscriptionEnder stops a token's WS subscription once no open position
// needs it.
type SubscriptionEnder interface {
	EndSubscription(tokenID string)
}

// StatusChecker is the subset of venue.StatusChecker the manager needs.
type StatusChecker interface {
	GetMarketStatus(ctx context.Context, marketID string) (venue.MarketStatus, error)
}

// Config parameterizes the exit rules.
type Config struct {
	MaxPositionAge      time.Duration
	FlattenAfterBadFeed time.Duration
	FlattenThreshold    float64 // feed-quality score below which the flatten timer runs
	CostModel           costs.Model
}

// Manager runs the per-tick exit-rule evaluation. It is the sole mutator of
// the open-position table after the Decision Engine inserts a position.
type Manager struct {
	cfg Config

	store      *Store
	quotes     QuoteGetter
	status     StatusChecker
	balance    BalanceReleaser
	exposure   ExposureReleaser
	subs       SubscriptionEnder
	feedHealth HealthScorer

	feedBadSince time.Time // zero while feed quality is at or above the flatten threshold

	onClose func(p *Position)

	now func() time.Time
}

// OnClose registers a callback invoked every time a position closes, after
// its state has settled to Closed. Used to persist the closed position and
// feed per-reason counters into telemetry without this package importing
// either directly.
func (m *Manager) OnClose(fn func(p *Position)) {
	m.onClose = fn
}

// NewManager wires a Manager to its collaborators.
func NewManager(
	cfg Config,
	store *Store,
	quotes QuoteGetter,
	status StatusChecker,
	balance BalanceReleaser,
	exposure ExposureReleaser,
	subs SubscriptionEnder,
	feedHealth HealthScorer,
) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      store,
		quotes:     quotes,
		status:     status,
		balance:    balance,
		exposure:   exposure,
		subs:       subs,
		feedHealth: feedHealth,
		now:        time.Now,
	}
}

// Tick evaluates every open position once. A failed quote fetch is logged; a
// failed status check is logged only when the quote fetch also failed. Either
// way that position is retried on the next tick, and the loop carries on for
// the rest of the book.
func (m *Manager) Tick(ctx context.Context) {
	m.updateFeedTimer()
	for _, p := range m.store.AllOpen() {
		if p.State == StateClosing {
			continue
		}
		m.evaluate(ctx, p)
	}
}

// updateFeedTimer tracks how long feed quality has been continuously below
// the flatten threshold. The timer is shared across positions: it measures
// the feed, not any one market.
func (m *Manager) updateFeedTimer() {
	if m.feedHealth.Score() < m.cfg.FlattenThreshold {
		if m.feedBadSince.IsZero() {
			m.feedBadSince = m.now()
		}
		return
	}
	m.feedBadSince = time.Time{}
}

func (m *Manager) feedFlattenDue() bool {
	return !m.feedBadSince.IsZero() && m.now().Sub(m.feedBadSince) >= m.cfg.FlattenAfterBadFeed
}

// evaluate applies the exit rules in priority order; the first match wins:
// stop-loss, take-profit, bad-feed flatten, max-age flatten, market resolved.
func (m *Manager) evaluate(ctx context.Context, p *Position) {
	q, qErr := m.quotes.Get(ctx, p.TokenID)
	if qErr == nil {
		if q.Source == quote.SourceWS {
			p.WSQuoteCount++
		} else {
			p.RESTQuoteCount++
		}

		mark := q.BestBid
		p.LastMark = mark

		exitLiquidity := q.AskSize
		if exitLiquidity == 0 {
			exitLiquidity = p.EntryLiquidity
		}

		switch {
		case mark <= p.StopPrice:
			m.close(p, mark, ReasonStopLoss, exitLiquidity)
			return
		case mark >= p.TakePrice:
			m.close(p, mark, ReasonTakeProfit, exitLiquidity)
			return
		}

		if m.feedFlattenDue() {
			m.close(p, mark, ReasonFeedDegraded, exitLiquidity)
			return
		}

		if m.now().Sub(p.OpenedAt) >= m.cfg.MaxPositionAge {
			m.close(p, mark, ReasonMaxAge, exitLiquidity)
			return
		}
	} else {
		log.Warn().Err(qErr).Str("position", p.ID).Msg("quote fetch failed during tick")
	}

	status, err := m.status.GetMarketStatus(ctx, p.MarketID)
	if err != nil {
		if qErr != nil {
			log.Warn().Err(err).Str("position", p.ID).Msg("status check also failed, retrying next tick")
		}
		return
	}
	if status.Status == venue.StatusResolved {
		exitPrice := status.Outcome
		if p.Side == venue.SideNo {
			exitPrice = 1 - status.Outcome
		}
		m.close(p, exitPrice, ReasonMarketResolved, p.exitLiquidityFallback())
	}
}

// close transitions a position to Closed, computes realized PnL through the
// shared cost model, releases its stake and exposure, and ends its WS
// subscription if no other open position needs the same token.
func (m *Manager) close(p *Position, exitPrice float64, reason CloseReason, exitLiquidity float64) {
	p.State = StateClosing

	grossPnL := realizedGross(p, exitPrice)
	roundTrip := m.cfg.CostModel.RoundTripCosts(p.EntryLiquidity, exitLiquidity, p.Stake, exitPrice*p.EntrySize)
	netPnL := money.Round2(grossPnL - roundTrip)

	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.ClosedAt = m.now()
	p.ExitLiquidity = exitLiquidity
	p.RealizedGrossPnL = money.Round2(grossPnL)
	p.RealizedNetPnL = netPnL
	p.State = StateClosed

	m.store.Remove(p)
	m.balance.ReleaseStakeAndRealize(p.Stake, netPnL)
	m.exposure.Release(p.ClosedAt, p.ID, netPnL)

	stillNeeded := false
	for _, other := range m.store.AllOpen() {
		if other.TokenID == p.TokenID {
			stillNeeded = true
			break
		}
	}
	if !stillNeeded {
		m.subs.EndSubscription(p.TokenID)
	}

	if m.onClose != nil {
		m.onClose(p)
	}

	log.Info().
		Str("position", p.ID).
		Str("market", p.MarketID).
		Str("reason", string(reason)).
		Float64("realized_net", netPnL).
		Msg("position closed")
}

// realizedGross is the shares held times the price move from entry to exit.
func realizedGross(p *Position, exitPrice float64) float64 {
	return p.EntrySize * (exitPrice - p.EntryPrice)
}

// exitLiquidityFallback is used when a market resolves and no fresh quote
// liquidity is available; it falls back to the entry liquidity reading.
func (p *Position) exitLiquidityFallback() float64 {
	return p.EntryLiquidity
}
