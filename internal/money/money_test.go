package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, 17.44, Round2(17.4449))
	assert.Equal(t, 17.45, Round2(17.445))
	assert.Equal(t, -3.13, Round2(-3.125))
}

func TestStakeInvariantHoldsAfterManyFills(t *testing.T) {
	// 0.1 + 0.2 style drift must not leak into the stake identity
	size, price := 8.333333, 0.60
	stake := Stake(size, price)
	assert.InDelta(t, size*price, stake, 1e-6)
}

func TestApplyDeltaAccumulatesWithoutDrift(t *testing.T) {
	balance := 100.0
	for i := 0; i < 1000; i++ {
		balance = ApplyDelta(balance, 0.1)
		balance = ApplyDelta(balance, -0.1)
	}
	assert.Equal(t, 100.0, balance)
}
