package feed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/models"
)

// Aggregator merges live scores from every provider: it runs one poll
// task per provider, merges their observations into a single fixture
// snapshot map that it alone owns, classifies and de-duplicates deltas, and
// emits ScoreEvents onto a bounded Queue.
type Aggregator struct {
	providers    []Provider
	sports       []models.Sport
	pollInterval time.Duration
	perProviderTimeout time.Duration
	staleTTL     time.Duration

	queue   *Queue
	deduper *Deduper

	mu             sync.Mutex
	fixtures       map[string]*Fixture
	providerStates map[string]map[string]models.GameState // fixtureID -> provider -> last state seen from that provider

	failuresMu sync.Mutex
	failures   map[string]int64
}

// NewAggregator wires a set of providers to a bounded output Queue.
func NewAggregator(providers []Provider, sports []models.Sport, pollInterval, perProviderTimeout, staleTTL, dedupWindow time.Duration, queue *Queue) *Aggregator {
	return &Aggregator{
		providers:          providers,
		sports:             sports,
		pollInterval:       pollInterval,
		perProviderTimeout: perProviderTimeout,
		staleTTL:           staleTTL,
		queue:              queue,
		deduper:            NewDeduper(dedupWindow),
		fixtures:           make(map[string]*Fixture),
		providerStates:     make(map[string]map[string]models.GameState),
		failures:           make(map[string]int64),
	}
}

// Run blocks, polling every provider on pollInterval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(a.staleTTL / 4)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		case <-pruneTicker.C:
			a.pruneStale()
		}
	}
}

// pollOnce queries every provider in parallel, each bounded by
// perProviderTimeout, then merges and diffs the results. A missing or erroring
// provider is tolerated as long as at least one other succeeds.
func (a *Aggregator) pollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	results := make([][]RawObservation, len(a.providers))

	for i, p := range a.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.perProviderTimeout)
			defer cancel()

			obs, err := a.callProvider(callCtx, p)
			if err != nil {
				a.recordFailure(p.Name())
				log.Warn().Err(err).Str("provider", p.Name()).Msg("score provider poll failed")
				return
			}
			results[i] = obs
		}(i, p)
	}
	wg.Wait()

	for i, obs := range results {
		if obs == nil {
			continue
		}
		providerName := a.providers[i].Name()
		for _, o := range obs {
			a.ingest(providerName, o)
		}
	}
}

// callProvider runs Provider.ListLive off the calling goroutine so a hung
// provider cannot block the poll tick past perProviderTimeout.
func (a *Aggregator) callProvider(ctx context.Context, p Provider) ([]RawObservation, error) {
	type result struct {
		obs []RawObservation
		err error
	}
	done := make(chan result, 1)
	go func() {
		obs, err := p.ListLive(a.sports)
		done <- result{obs, err}
	}()

	select {
	case r := <-done:
		return r.obs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ingest diffs one provider observation against that provider's own last
// report for the fixture and, for every positive delta, classifies and (if
// not a duplicate across providers) emits a ScoreEvent. Diffing per provider
// lets a second provider corroborate a delta the first already reported,
// which the deduper folds into the original event's consensus count.
func (a *Aggregator) ingest(providerName string, obs RawObservation) {
	a.mu.Lock()
	fixture, existed := a.fixtures[obs.FixtureID]
	if !existed {
		fixture = &Fixture{
			ID:            obs.FixtureID,
			Sport:         obs.Sport,
			HomeTeam:      obs.Home,
			AwayTeam:      obs.Away,
			State:         obs.State,
			LastSeen:      obs.ProviderTimestamp,
			ProviderVotes: map[string]int{providerName: 1},
		}
		a.fixtures[obs.FixtureID] = fixture
		a.providerStates[obs.FixtureID] = map[string]models.GameState{providerName: obs.State}
		a.mu.Unlock()
		return // first observation establishes the baseline; no delta to report
	}

	perProvider := a.providerStates[obs.FixtureID]
	if perProvider == nil {
		perProvider = make(map[string]models.GameState)
		a.providerStates[obs.FixtureID] = perProvider
	}
	prevState, seenBefore := perProvider[providerName]
	perProvider[providerName] = obs.State

	fixture.State = obs.State
	fixture.LastSeen = obs.ProviderTimestamp
	fixture.ProviderVotes[providerName]++
	a.mu.Unlock()

	if !seenBefore || prevState == obs.State {
		return
	}

	for _, c := range classifyDelta(obs.Sport, prevState, obs.State) {
		candidate := &ScoreEvent{
			ID:         uuid.NewString(),
			FixtureID:  obs.FixtureID,
			Kind:       c.kind,
			PointValue: c.pointValue,
			PrevState:  prevState,
			NewState:   obs.State,
			Timestamp:  time.Now(),
			Provider:   providerName,
		}
		if emitted, ok := a.deduper.Observe(candidate); ok {
			a.queue.Push(emitted)
		}
	}
}

func (a *Aggregator) recordFailure(provider string) {
	a.failuresMu.Lock()
	defer a.failuresMu.Unlock()
	a.failures[provider]++
}

// FailureCounts returns each provider's cumulative poll-failure count.
func (a *Aggregator) FailureCounts() map[string]int64 {
	a.failuresMu.Lock()
	defer a.failuresMu.Unlock()
	out := make(map[string]int64, len(a.failures))
	for k, v := range a.failures {
		out[k] = v
	}
	return out
}

// pruneStale evicts fixtures with no update for longer than staleTTL.
func (a *Aggregator) pruneStale() {
	cutoff := time.Now().Add(-a.staleTTL)
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, f := range a.fixtures {
		if f.LastSeen.Before(cutoff) {
			delete(a.fixtures, id)
			delete(a.providerStates, id)
		}
	}
}

// Queue exposes the receive side of the output Queue for the Decision
// Engine's consumer task.
func (a *Aggregator) Queue() <-chan *ScoreEvent {
	return a.queue.C()
}

// Fixture returns a copy of the current snapshot for a fixture, if known.
func (a *Aggregator) Fixture(id string) (Fixture, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.fixtures[id]
	if !ok {
		return Fixture{}, false
	}
	return *f, true
}
