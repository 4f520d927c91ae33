package costs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHalfSpread(t *testing.T) {
	assert.InDelta(t, 0.0169, HalfSpread(0.58, 0.60), 1e-3)
	assert.Equal(t, 0.0, HalfSpread(0, 0))
}

func TestSlippageBucketsMonotone(t *testing.T) {
	assert.Greater(t, SlippageBucket(100), SlippageBucket(600))
	assert.Greater(t, SlippageBucket(600), SlippageBucket(3000))
	assert.Greater(t, SlippageBucket(3000), SlippageBucket(20000))
}

func TestEntryCostsSumComponents(t *testing.T) {
	m := Model{FeeRate: 0.01, CancelRequotePenalty: 0.005}
	want := HalfSpread(0.58, 0.60) + SlippageBucket(10000) + 0.01 + 0.005
	assert.InDelta(t, want, m.EntryCosts(0.58, 0.60, 10000), 1e-9)
}

func TestRoundTripCostsScaleWithNotional(t *testing.T) {
	m := DefaultModel()
	small := m.RoundTripCosts(10000, 10000, 5, 6)
	large := m.RoundTripCosts(10000, 10000, 50, 60)
	assert.Greater(t, large, small)
}
