package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalanceIdentityThroughPositionLifecycle(t *testing.T) {
	tr := New(100)
	assert.Equal(t, 100.0, tr.Available())

	tr.ReserveStake(17.44)
	assert.InDelta(t, 82.56, tr.Available(), 1e-9)

	// close at a profit: stake comes back plus realized net
	tr.ReleaseStakeAndRealize(17.44, 3.21)
	assert.InDelta(t, 103.21, tr.Available(), 1e-9)
}

func TestFailedOrderRestoresBalanceExactly(t *testing.T) {
	tr := New(100)
	tr.ReserveStake(5)
	tr.ReleaseReservation(5)
	assert.Equal(t, 100.0, tr.Available())
}

func TestLossReducesBalance(t *testing.T) {
	tr := New(100)
	tr.ReserveStake(10)
	tr.ReleaseStakeAndRealize(10, -4.5)
	assert.InDelta(t, 95.5, tr.Available(), 1e-9)
}
