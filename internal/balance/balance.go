// Package balance tracks the account balance invariant
// Balance = initial_balance + Σ realized_net_pnl over closed positions −
// Σ open stakes. Mutated only by the Position Manager (realized PnL, stake
// release) and the Decision Engine (stake reservation on open); read by both
// plus the Risk Book.
package balance

import (
	"sync"

	"github.com/sawpanic/sportsedge/internal/money"
)

// Tracker holds the running balance components under a single lock.
type Tracker struct {
	mu             sync.Mutex
	initial        float64
	realizedTotal  float64
	openStakeTotal float64
}

// New constructs a Tracker seeded with the configured initial balance.
func New(initial float64) *Tracker {
	return &Tracker{initial: initial}
}

// Available returns the balance available for new stakes.
func (t *Tracker) Available() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return money.Round2(t.initial + t.realizedTotal - t.openStakeTotal)
}

// ReserveStake commits a stake to an about-to-open position.
func (t *Tracker) ReserveStake(stake float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openStakeTotal = money.ApplyDelta(t.openStakeTotal, stake)
}

// ReleaseStakeAndRealize frees a closed position's stake and folds in its
// realized net PnL.
func (t *Tracker) ReleaseStakeAndRealize(stake, realizedNet float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openStakeTotal = money.ApplyDelta(t.openStakeTotal, -stake)
	t.realizedTotal = money.ApplyDelta(t.realizedTotal, realizedNet)
}

// ReleaseReservation undoes a reservation for a stake that never became a
// position (e.g. order placement failure).
func (t *Tracker) ReleaseReservation(stake float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openStakeTotal = money.ApplyDelta(t.openStakeTotal, -stake)
}
