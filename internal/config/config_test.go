package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 100.0, cfg.InitialBalance)
	assert.Equal(t, 0.25, cfg.KellyFraction)
	assert.Equal(t, 0.05, cfg.MinEdge)
	assert.Equal(t, 5, cfg.PollIntervalSecs)
	assert.Equal(t, 2500, cfg.WSPriceMaxAgeMs)
	assert.Equal(t, 0.015, cfg.ShiftThreshold.NBA)
	assert.Equal(t, 0.04, cfg.ShiftThreshold.Soccer)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kelly_fraction: 0.10\nmin_edge: 0.08\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.10, cfg.KellyFraction)
	assert.Equal(t, 0.08, cfg.MinEdge)
	assert.Equal(t, 100.0, cfg.InitialBalance, "unset fields keep defaults")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	t.Setenv("SE_MIN_EDGE", "0.12")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.12, cfg.MinEdge)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero balance", func(c *Config) { c.InitialBalance = 0 }},
		{"kelly above 1", func(c *Config) { c.KellyFraction = 1.5 }},
		{"stop loss at 1", func(c *Config) { c.StopLossFraction = 1.0 }},
		{"negative take profit", func(c *Config) { c.TakeProfitFraction = -0.1 }},
		{"zero queue", func(c *Config) { c.QueueCapacity = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
