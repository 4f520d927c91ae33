// Package engine starts and supervises the long-lived tasks: provider
// polling (inside the Aggregator), the Decision Engine consumer, the
// Position Manager ticker, and the Calibration Trainer timer.
// Shutdown is cooperative — cancelling the context stops every task without
// flattening open positions.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/calibration"
	"github.com/sawpanic/sportsedge/internal/decision"
	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/position"
	"github.com/sawpanic/sportsedge/internal/telemetry"
)

// Engine supervises the full set of background tasks for one running
// instance of sportsedge.
type Engine struct {
	aggregator *feed.Aggregator
	decider    *decision.Engine
	posMgr     *position.Manager
	trainer    *calibration.Trainer
	metrics    *telemetry.Registry
	rejections *decision.ReasonLog

	onOpen func(p *position.Position)

	positionTickInterval time.Duration
}

// OnOpen registers a callback invoked after a position is opened, used to
// persist it without this package importing the storage layer.
func (e *Engine) OnOpen(fn func(p *position.Position)) {
	e.onOpen = fn
}

// New wires an Engine to its already-constructed collaborators. rejections
// may be nil to disable rejection history.
func New(
	aggregator *feed.Aggregator,
	decider *decision.Engine,
	posMgr *position.Manager,
	trainer *calibration.Trainer,
	metrics *telemetry.Registry,
	rejections *decision.ReasonLog,
	positionTickInterval time.Duration,
) *Engine {
	return &Engine{
		aggregator:           aggregator,
		decider:              decider,
		posMgr:               posMgr,
		trainer:              trainer,
		metrics:              metrics,
		rejections:           rejections,
		positionTickInterval: positionTickInterval,
	}
}

// Run starts every task and blocks until ctx is cancelled, then waits for
// each task to observe cancellation and return.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.aggregator.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runDecisionConsumer(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runPositionTicker(ctx)
	}()

	if e.trainer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.trainer.Run(ctx)
		}()
	}

	<-ctx.Done()
	log.Info().Msg("engine: shutdown signal received, waiting for tasks to drain")
	wg.Wait()
	log.Info().Msg("engine: all tasks stopped, open positions left untouched")
}

// runDecisionConsumer drains the feed queue and runs each ScoreEvent through
// the Decision Engine, recording the outcome to telemetry.
func (e *Engine) runDecisionConsumer(ctx context.Context) {
	queue := e.aggregator.Queue()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			e.processEvent(ctx, ev)
		}
	}
}

func (e *Engine) processEvent(ctx context.Context, ev *feed.ScoreEvent) {
	outcome, err := e.decider.Process(ctx, *ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.ID).Msg("decision engine: processing error")
		return
	}

	if outcome.Accepted {
		e.metrics.RecordOutcome("accepted")
		e.metrics.PositionsOpened.Inc()
		if e.onOpen != nil {
			e.onOpen(outcome.Position)
		}
		log.Info().Str("position", outcome.Position.ID).Str("market", outcome.Position.MarketID).Msg("position opened")
		return
	}
	e.metrics.RecordOutcome(string(outcome.Reason))
	if e.rejections != nil {
		e.rejections.Record(decision.RejectionRecord{
			EventID:   ev.ID,
			FixtureID: ev.FixtureID,
			Reason:    outcome.Reason,
			Detail:    outcome.Detail,
			At:        time.Now(),
		})
	}
}

func (e *Engine) runPositionTicker(ctx context.Context) {
	ticker := time.NewTicker(e.positionTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.posMgr.Tick(ctx)
		}
	}
}
