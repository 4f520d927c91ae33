package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/balance"
	"github.com/sawpanic/sportsedge/internal/calibration"
	"github.com/sawpanic/sportsedge/internal/config"
	"github.com/sawpanic/sportsedge/internal/costs"
	"github.com/sawpanic/sportsedge/internal/dashboard"
	"github.com/sawpanic/sportsedge/internal/decision"
	"github.com/sawpanic/sportsedge/internal/engine"
	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/feedhealth"
	"github.com/sawpanic/sportsedge/internal/market"
	"github.com/sawpanic/sportsedge/internal/models"
	"github.com/sawpanic/sportsedge/internal/position"
	"github.com/sawpanic/sportsedge/internal/provider"
	"github.com/sawpanic/sportsedge/internal/quote"
	"github.com/sawpanic/sportsedge/internal/risk"
	"github.com/sawpanic/sportsedge/internal/storage/postgres"
	"github.com/sawpanic/sportsedge/internal/storage/rediscache"
	"github.com/sawpanic/sportsedge/internal/telemetry"
	"github.com/sawpanic/sportsedge/internal/venue"
)

// nopPersister satisfies decision.EventPersister when no database is
// configured in dry-run mode; events still flow, nothing is durable.
type nopPersister struct{}

func (nopPersister) SaveScoreEvent(feed.ScoreEvent) error { return nil }

func runEngine(cfgPath string, forceDryRun bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if forceDryRun {
		cfg.DryRun = true
	}
	log.Info().Bool("dry_run", cfg.DryRun).Float64("initial_balance", cfg.InitialBalance).Msg("starting engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matrix, err := risk.LoadMatrix(cfg.CorrelationMatrixPath)
	if err != nil {
		return fmt.Errorf("correlation matrix: %w", err)
	}

	bal := balance.New(cfg.InitialBalance)
	feedHealth := feedhealth.New(feedhealth.DefaultConfig())
	calibrator := models.NewCalibrator()
	positions := position.NewStore()
	riskBook := risk.NewBook(cfg.Risk, matrix)
	costModel := costs.DefaultModel()
	metrics := telemetry.NewRegistry()
	rejections := decision.NewReasonLog(512)

	venueClient := venue.NewHTTPClient(cfg.VenueBaseURL, cfg.DryRun)
	wsClient := venue.NewWSClient(cfg.VenueWSURL)
	if err := wsClient.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("venue ws connect failed at startup, quotes will fall back to rest")
	}
	defer wsClient.Close()
	quotes := quote.NewSource(venueClient, wsClient, time.Duration(cfg.WSPriceMaxAgeMs)*time.Millisecond)

	var remote market.RemoteCache
	if cfg.RedisAddr != "" {
		rc := rediscache.New(cfg.RedisAddr, "sportsedge:")
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, market cache is in-memory only")
		} else {
			remote = rc
			defer rc.Close()
		}
	}
	resolver := market.NewResolver(venueClient, cfg.MarketCacheTTL, remote)

	var (
		db        *postgres.Manager
		persister decision.EventPersister = nopPersister{}
	)
	if cfg.DatabaseDSN != "" {
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = cfg.DatabaseDSN
		db, err = postgres.NewManager(pgCfg)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		persister = db.Events
		warmStartCalibrator(ctx, db, calibrator, cfg.Sports)
	} else if !cfg.DryRun {
		return fmt.Errorf("database_dsn is required outside dry-run mode")
	} else {
		log.Warn().Msg("no database configured, running without persistence")
	}

	providers := make([]feed.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		providers = append(providers, provider.NewHTTPProvider(pc.Name, pc.BaseURL))
	}
	if len(providers) == 0 {
		return fmt.Errorf("at least one score provider must be configured")
	}

	sports := make([]models.Sport, 0, len(cfg.Sports))
	for _, s := range cfg.Sports {
		sports = append(sports, models.Sport(s))
	}

	queue := feed.NewQueue(cfg.QueueCapacity)
	aggregator := feed.NewAggregator(
		providers, sports,
		time.Duration(cfg.PollIntervalSecs)*time.Second,
		cfg.ProviderTimeout,
		cfg.StaleFixtureTTL,
		time.Duration(cfg.DedupWindowMs)*time.Millisecond,
		queue,
	)

	decider := decision.New(
		cfg, aggregator, persister, positions,
		feedHealth, resolver, quotes, riskBook, positions, bal,
		costModel, calibrator, venueClient,
	)

	posMgr := position.NewManager(
		position.Config{
			MaxPositionAge:      time.Duration(cfg.MaxPositionAgeSecs) * time.Second,
			FlattenAfterBadFeed: time.Duration(cfg.FlattenAfterBadFeedMs) * time.Millisecond,
			FlattenThreshold:    0.35,
			CostModel:           costModel,
		},
		positions, quotes, venueClient, bal, riskBook, quotes, feedHealth,
	)
	posMgr.OnClose(func(p *position.Position) {
		metrics.PositionsClosed.WithLabelValues(string(p.ExitReason)).Inc()
		if db != nil {
			if err := db.Positions.Upsert(ctx, p); err != nil {
				log.Warn().Err(err).Str("position", p.ID).Msg("failed to persist closed position")
			}
		}
	})

	var trainer *calibration.Trainer
	if db != nil {
		calCfg := calibration.DefaultConfig()
		calCfg.Interval = cfg.CalibrationInterval
		trainer = calibration.New(calCfg, db.Positions, db.Calibrations, calibrator, sports)
		trainer.OnPromote(func(sport models.Sport) {
			metrics.CalibrationPromotions.WithLabelValues(string(sport)).Inc()
		})
	}

	eng := engine.New(aggregator, decider, posMgr, trainer, metrics, rejections, cfg.PositionTickInterval)
	if db != nil {
		eng.OnOpen(func(p *position.Position) {
			if err := db.Positions.Upsert(ctx, p); err != nil {
				log.Warn().Err(err).Str("position", p.ID).Msg("failed to persist opened position")
			}
		})
	}

	dashCfg := dashboard.DefaultConfig()
	dashCfg.Addr = cfg.DashboardAddr
	dashCfg.Metrics = metrics.Handler()
	var history dashboard.BalanceHistory
	var events dashboard.EventHistory
	if db != nil {
		history = db.Balance
		events = db.Events
	}
	dash := dashboard.New(dashCfg, positions, bal, riskBook, feedHealth, history, events, rejections)
	go func() {
		if err := dash.Run(ctx); err != nil {
			log.Error().Err(err).Msg("dashboard server stopped")
		}
	}()

	go syncGauges(ctx, metrics, feedHealth, riskBook, positions)
	if db != nil {
		go recordBalanceHistory(ctx, db, bal)
		go pruneRetention(ctx, db, cfg.Retention)
	}

	eng.Run(ctx)
	return nil
}

// warmStartCalibrator installs the most recently promoted coefficients per
// sport so a restart does not regress to identity calibration.
func warmStartCalibrator(ctx context.Context, db *postgres.Manager, calibrator *models.Calibrator, sports []string) {
	for _, s := range sports {
		sport := models.Sport(s)
		coef, found, err := db.Calibrations.LatestPromoted(ctx, sport)
		if err != nil {
			log.Warn().Err(err).Str("sport", s).Msg("failed to load promoted calibration")
			continue
		}
		if found {
			calibrator.Promote(sport, coef)
			log.Info().Str("sport", s).Float64("a", coef.A).Float64("b", coef.B).Msg("calibration warm-started")
		}
	}
}

func syncGauges(ctx context.Context, metrics *telemetry.Registry, feedHealth *feedhealth.Monitor, riskBook *risk.Book, positions *position.Store) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := feedHealth.Stats()
			metrics.FeedQualityScore.Set(stats.Score)
			metrics.FeedFallbackRate.Set(stats.EWMAFallbackRate)
			metrics.FeedWSAgeMs.Set(stats.EWMAWSAgeMs)
			if stats.PauseNewEntries {
				metrics.FeedPaused.Set(1)
			} else {
				metrics.FeedPaused.Set(0)
			}

			snap := riskBook.Snapshot()
			metrics.DayTradeCount.Set(float64(snap.DayTradeCount))
			if snap.BreakerTripped {
				metrics.RiskBreakerTripped.Set(1)
			} else {
				metrics.RiskBreakerTripped.Set(0)
			}
			metrics.RealizedPnLTotal.Set(snap.DayRealizedPnL)

			var exposure float64
			for _, p := range positions.AllOpen() {
				exposure += p.Stake
			}
			metrics.OpenExposure.Set(exposure)
		}
	}
}

func recordBalanceHistory(ctx context.Context, db *postgres.Manager, bal *balance.Tracker) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.Balance.Record(ctx, time.Now(), bal.Available()); err != nil {
				log.Warn().Err(err).Msg("failed to record balance snapshot")
			}
		}
	}
}

func pruneRetention(ctx context.Context, db *postgres.Manager, retention config.Retention) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if err := db.Events.DeleteOlderThan(ctx, now.Add(-retention.ScoreEvents)); err != nil {
				log.Warn().Err(err).Msg("score event pruning failed")
			}
			if err := db.Balance.DeleteOlderThan(ctx, now.Add(-retention.Balance)); err != nil {
				log.Warn().Err(err).Msg("balance history pruning failed")
			}
		}
	}
}
