package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKellyFraction(t *testing.T) {
	// p=0.74 at price 0.60: edge is positive, kelly backs a meaningful stake
	f := kellyFraction(0.74, 0.60, 0.25)
	assert.InDelta(t, 0.0875, f, 1e-4)

	// fair price: no edge, no stake
	assert.Equal(t, 0.0, kellyFraction(0.60, 0.60, 0.25))

	// negative edge is floored at zero, never shorted
	assert.Equal(t, 0.0, kellyFraction(0.40, 0.60, 0.25))

	// degenerate prices size nothing
	assert.Equal(t, 0.0, kellyFraction(0.5, 0, 0.25))
	assert.Equal(t, 0.0, kellyFraction(0.5, 1, 0.25))
}

func TestClampStake(t *testing.T) {
	stake, ok := clampStake(5, 1, 100)
	assert.True(t, ok)
	assert.Equal(t, 5.0, stake)

	_, ok = clampStake(0.99, 1, 100)
	assert.False(t, ok, "below the minimum stake")

	_, ok = clampStake(101, 1, 100)
	assert.False(t, ok, "beyond available balance")

	stake, ok = clampStake(1, 1, 100)
	assert.True(t, ok, "exactly the minimum is accepted")
	assert.Equal(t, 1.0, stake)

	stake, ok = clampStake(100, 1, 100)
	assert.True(t, ok, "exactly the full balance is accepted")
	assert.Equal(t, 100.0, stake)
}
