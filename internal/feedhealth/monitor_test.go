package feedhealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSustainedLowQualityPausesEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SustainedWindow = 20 * time.Millisecond
	m := New(cfg)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Observe(true, 6000) // all REST, stale WS -> low quality
		if m.PauseNewEntries() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.True(t, m.PauseNewEntries(), "sustained low feed quality should pause new entries")
}

func TestFallbackRateAlonePausesEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SustainedWindow = 20 * time.Millisecond
	m := New(cfg)

	// WS quotes stay perfectly fresh; only the fallback rate is high. Every
	// observation is REST, so the fallback EWMA is 1.0 from the first one and
	// the quality score sits below the pause threshold until the sustained
	// window elapses.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Observe(true, 0)
		if m.PauseNewEntries() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.Less(t, m.Score(), 0.35)
	assert.True(t, m.PauseNewEntries(), "rest-only degradation must pause entries without ws staleness")
}

func TestHealthyFeedNeverPauses(t *testing.T) {
	m := New(DefaultConfig())
	for i := 0; i < 20; i++ {
		m.Observe(false, 100)
	}
	assert.False(t, m.PauseNewEntries())
	assert.Greater(t, m.Score(), 0.8)
}

func TestAdaptiveMinEdgeMonotoneInQuality(t *testing.T) {
	good := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		good.Observe(false, 100)
	}

	bad := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		bad.Observe(true, 6000)
	}

	assert.Less(t, good.AdaptiveMinEdge(0.05), bad.AdaptiveMinEdge(0.05))
}
