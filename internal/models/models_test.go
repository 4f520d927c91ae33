package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampBounds(t *testing.T) {
	assert.Equal(t, probFloor, Clamp(-5))
	assert.Equal(t, probCeil, Clamp(5))
	assert.Equal(t, 0.5, Clamp(0.5))
}

func TestAllSportsStayWithinBounds(t *testing.T) {
	sports := []Sport{Soccer, NFL, NBA, MLB, NHL, Tennis, Sport("unknown")}
	rng := rand.New(rand.NewSource(42))

	for _, sport := range sports {
		model := ForSport(sport)
		for i := 0; i < 500; i++ {
			state := randomState(rng, sport)
			p := model(state)
			require.GreaterOrEqualf(t, p, probFloor, "sport=%s state=%+v", sport, state)
			require.LessOrEqualf(t, p, probCeil, "sport=%s state=%+v", sport, state)
		}
	}
}

func randomState(rng *rand.Rand, sport Sport) GameState {
	return GameState{
		Sport:               sport,
		GoalsHome:           rng.Intn(8),
		GoalsAway:           rng.Intn(8),
		MinuteOrPeriod:      rng.Intn(130) - 10,
		SecondsRemaining:    rng.Float64() * 4000,
		ScoreHome:           rng.Intn(60),
		ScoreAway:           rng.Intn(60),
		PossessionIsHome:    rng.Intn(2) == 0,
		RunsHome:            rng.Intn(20),
		RunsAway:            rng.Intn(20),
		InningHalfIndex:     rng.Intn(20),
		Outs:                rng.Intn(4),
		BattingIsHome:       rng.Intn(2) == 0,
		SetsWonHome:         rng.Intn(3),
		SetsWonAway:         rng.Intn(3),
		GamesHomeCurrentSet: rng.Intn(8),
		GamesAwayCurrentSet: rng.Intn(8),
		ServerIsHome:        rng.Intn(2) == 0,
	}
}

func TestSoccerDecaysTowardSignAtFullTime(t *testing.T) {
	lead := GameState{Sport: Soccer, GoalsHome: 2, GoalsAway: 0, MinuteOrPeriod: 88}
	early := GameState{Sport: Soccer, GoalsHome: 2, GoalsAway: 0, MinuteOrPeriod: 5}
	assert.Greater(t, PSoccer(lead), PSoccer(early))
}

func TestCalibratorIdentityByDefault(t *testing.T) {
	c := NewCalibrator()
	raw := 0.62
	assert.InDelta(t, raw, c.Apply(NBA, raw), 1e-9)
}

func TestCalibratorPromotion(t *testing.T) {
	c := NewCalibrator()
	c.Promote(NBA, Coefficients{A: 1.2, B: 0.1})
	got := c.Apply(NBA, 0.6)
	assert.NotEqual(t, 0.6, got)
	assert.GreaterOrEqual(t, got, probFloor)
	assert.LessOrEqual(t, got, probCeil)
}
