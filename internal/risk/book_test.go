package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sportsedge/internal/config"
)

func budget() config.RiskBudget {
	return config.RiskBudget{
		PerEventCap:      25,
		PerSportCap:      50,
		PerTeamCap:       30,
		DayDrawdownLimit: 20,
		DayTradeCapCount: 3,
	}
}

func TestPerEventCapRejectsOversizedStake(t *testing.T) {
	b := NewBook(budget(), NewMatrix())
	ok, reason := b.CanAdmit(time.Now(), "nba", "Lakers", 30, 0)
	assert.False(t, ok)
	assert.Equal(t, RejectEventCap, reason)
}

func TestDayTradeCountCircuitBreaker(t *testing.T) {
	b := NewBook(budget(), NewMatrix())
	now := time.Now()
	for i := 0; i < 3; i++ {
		ok, _ := b.CanAdmit(now, "nba", "Lakers", 1, 0)
		require.True(t, ok)
		b.Admit(now, Exposure{PositionID: string(rune('a' + i)), Sport: "nba", Team: "Lakers", Stake: 1})
	}
	ok, reason := b.CanAdmit(now, "nba", "Lakers", 1, 0)
	assert.False(t, ok)
	assert.Equal(t, RejectDayTradeCount, reason)
}

func TestCorrelatedTeamExposureBlocksNewPosition(t *testing.T) {
	m := NewMatrix()
	m.Set("Lakers", "Clippers", 0.8)
	b := NewBook(budget(), m)
	now := time.Now()

	b.Admit(now, Exposure{PositionID: "p1", Sport: "nba", Team: "Lakers", Stake: 20})

	ok, reason := b.CanAdmit(now, "nba", "Clippers", 15, 0)
	assert.False(t, ok)
	assert.Equal(t, RejectTeamCap, reason)
}

func TestDayDrawdownTripsBreakerUntilRollover(t *testing.T) {
	b := NewBook(budget(), NewMatrix())
	now := time.Now()
	b.Release(now, "p1", -25) // realized loss beyond the drawdown limit

	ok, reason := b.CanAdmit(now, "nfl", "Cowboys", 1, 0)
	assert.False(t, ok)
	assert.Equal(t, RejectDayDrawdown, reason)

	tomorrow := now.Add(25 * time.Hour)
	ok, _ = b.CanAdmit(tomorrow, "nfl", "Cowboys", 1, 0)
	assert.True(t, ok, "breaker should clear on UTC rollover")
}
