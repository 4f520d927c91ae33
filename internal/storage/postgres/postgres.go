// Package postgres persists the durable tables (score_events, positions,
// balance_history, model_calibrations) through a pooled sqlx connection.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig returns reasonable pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// Manager owns the pooled connection and every table-scoped repository.
type Manager struct {
	db     *sqlx.DB
	cfg    Config
	Events *ScoreEventRepo
	Positions *PositionRepo
	Balance   *BalanceHistoryRepo
	Calibrations *CalibrationRepo
}

// NewManager opens and pings a pooled connection, failing fast.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database_dsn is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Manager{
		db:           db,
		cfg:          cfg,
		Events:       &ScoreEventRepo{db: db, timeout: cfg.QueryTimeout},
		Positions:    &PositionRepo{db: db, timeout: cfg.QueryTimeout},
		Balance:      &BalanceHistoryRepo{db: db, timeout: cfg.QueryTimeout},
		Calibrations: &CalibrationRepo{db: db, timeout: cfg.QueryTimeout},
	}, nil
}

// Close releases the pooled connection.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Health reports basic connectivity and pool stats for the dashboard.
func (m *Manager) Health(ctx context.Context) (bool, sql.DBStats) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()
	healthy := m.db.PingContext(ctx) == nil
	return healthy, m.db.Stats()
}
