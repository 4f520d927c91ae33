// Package config loads and validates sportsedge runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ShiftThresholds holds the per-sport probability-shift gate.
type ShiftThresholds struct {
	Soccer float64 `yaml:"soccer"`
	NFL    float64 `yaml:"nfl"`
	NBA    float64 `yaml:"nba"`
	MLB    float64 `yaml:"mlb"`
	NHL    float64 `yaml:"nhl"`
	Tennis float64 `yaml:"tennis"`
}

// RiskBudget holds the exposure caps and day-level circuit-breaker limits.
type RiskBudget struct {
	PerEventCap      float64 `yaml:"per_event_cap"`
	PerSportCap      float64 `yaml:"per_sport_cap"`
	PerTeamCap       float64 `yaml:"per_team_cap"`
	DayDrawdownLimit float64 `yaml:"day_drawdown_limit"`
	DayTradeCapCount int     `yaml:"day_trade_count_limit"`
}

// Retention holds how long historical rows are kept before pruning.
type Retention struct {
	ScoreEvents time.Duration `yaml:"score_events"`
	Balance     time.Duration `yaml:"balance"`
}

// Config is the full set of overridable engine knobs.
type Config struct {
	DryRun                   bool            `yaml:"dry_run" env:"SE_DRY_RUN"`
	InitialBalance           float64         `yaml:"initial_balance" env:"SE_INITIAL_BALANCE"`
	KellyFraction            float64         `yaml:"kelly_fraction" env:"SE_KELLY_FRACTION"`
	StopLossFraction         float64         `yaml:"stop_loss_fraction" env:"SE_STOP_LOSS_FRACTION"`
	TakeProfitFraction       float64         `yaml:"take_profit_fraction" env:"SE_TAKE_PROFIT_FRACTION"`
	MinEdge                  float64         `yaml:"min_edge" env:"SE_MIN_EDGE"`
	PollIntervalSecs         int             `yaml:"poll_interval_secs" env:"SE_POLL_INTERVAL_SECS"`
	DedupWindowMs            int             `yaml:"dedup_window_ms" env:"SE_DEDUP_WINDOW_MS"`
	MaxEntryQuoteDivergence  float64         `yaml:"max_entry_quote_divergence" env:"SE_MAX_DIVERGENCE"`
	WSPriceMaxAgeMs          int             `yaml:"ws_price_max_age_ms" env:"SE_WS_MAX_AGE_MS"`
	MaxPositionAgeSecs       int             `yaml:"max_position_age_secs" env:"SE_MAX_POSITION_AGE_SECS"`
	MaxEventAgeMs            int             `yaml:"max_event_age_ms" env:"SE_MAX_EVENT_AGE_MS"`
	FlattenAfterBadFeedMs    int             `yaml:"flatten_after_bad_feed_ms" env:"SE_FLATTEN_AFTER_BAD_FEED_MS"`
	WeakConsensusFactor      float64         `yaml:"weak_consensus_factor" env:"SE_WEAK_CONSENSUS_FACTOR"`
	ShiftThreshold           ShiftThresholds `yaml:"shift_threshold"`
	Risk                     RiskBudget      `yaml:"risk"`
	Retention                Retention       `yaml:"retention"`
	StaleFixtureTTL          time.Duration   `yaml:"stale_fixture_ttl"`
	QueueCapacity            int             `yaml:"queue_capacity"`
	PositionTickInterval     time.Duration   `yaml:"position_tick_interval"`
	CalibrationInterval      time.Duration   `yaml:"calibration_interval"`
	CorrelationMatrixPath    string          `yaml:"correlation_matrix_path"`
	DatabaseDSN              string          `yaml:"database_dsn" env:"SE_PG_DSN"`
	RedisAddr                string          `yaml:"redis_addr" env:"SE_REDIS_ADDR"`
	DashboardAddr            string          `yaml:"dashboard_addr" env:"SE_DASHBOARD_ADDR"`

	VenueBaseURL    string           `yaml:"venue_base_url" env:"SE_VENUE_BASE_URL"`
	VenueWSURL      string           `yaml:"venue_ws_url" env:"SE_VENUE_WS_URL"`
	MarketCacheTTL  time.Duration    `yaml:"market_cache_ttl"`
	Sports          []string         `yaml:"sports"`
	Providers       []ProviderConfig `yaml:"providers"`
	ProviderTimeout time.Duration    `yaml:"provider_timeout"`
}

// ProviderConfig names one Score Provider vendor endpoint.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DryRun:                  true,
		InitialBalance:          100.0,
		KellyFraction:           0.25,
		StopLossFraction:        0.50,
		TakeProfitFraction:      0.30,
		MinEdge:                 0.05,
		PollIntervalSecs:        5,
		DedupWindowMs:           8000,
		MaxEntryQuoteDivergence: 0.04,
		WSPriceMaxAgeMs:         2500,
		MaxPositionAgeSecs:      6 * 3600,
		MaxEventAgeMs:           15000,
		FlattenAfterBadFeedMs:   60000,
		WeakConsensusFactor:     1.5,
		ShiftThreshold: ShiftThresholds{
			Soccer: 0.04,
			NFL:    0.03,
			NBA:    0.015,
			MLB:    0.025,
			NHL:    0.025,
			Tennis: 0.05,
		},
		Risk: RiskBudget{
			PerEventCap:      25.0,
			PerSportCap:      50.0,
			PerTeamCap:       30.0,
			DayDrawdownLimit: 20.0,
			DayTradeCapCount: 40,
		},
		Retention: Retention{
			ScoreEvents: 14 * 24 * time.Hour,
			Balance:     30 * 24 * time.Hour,
		},
		StaleFixtureTTL:       6 * time.Hour,
		QueueCapacity:         1024,
		PositionTickInterval:  5 * time.Second,
		CalibrationInterval:   time.Hour,
		CorrelationMatrixPath: "configs/correlation.yaml",
		DashboardAddr:         ":8088",

		VenueBaseURL:    "https://api.venue.example/v1",
		VenueWSURL:      "wss://api.venue.example/v1/stream",
		MarketCacheTTL:  5 * time.Minute,
		Sports:          []string{"soccer", "nfl", "nba", "mlb", "nhl", "tennis"},
		ProviderTimeout: 4 * time.Second,
		Providers:       nil,
	}
}

// Load reads a YAML config file, falling back to defaults for anything unset,
// then applies the environment overrides handled in applyEnv (SE_DRY_RUN,
// SE_INITIAL_BALANCE, SE_KELLY_FRACTION, SE_MIN_EDGE, SE_PG_DSN,
// SE_REDIS_ADDR, SE_VENUE_BASE_URL, SE_VENUE_WS_URL). Other `env` struct tags
// are not read.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate enforces the invariants the engine refuses to start without.
func (c Config) Validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive, got %f", c.InitialBalance)
	}
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("kelly_fraction must be in (0,1], got %f", c.KellyFraction)
	}
	if c.StopLossFraction <= 0 || c.StopLossFraction >= 1 {
		return fmt.Errorf("stop_loss_fraction must be in (0,1), got %f", c.StopLossFraction)
	}
	if c.TakeProfitFraction <= 0 {
		return fmt.Errorf("take_profit_fraction must be positive, got %f", c.TakeProfitFraction)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	return nil
}
