package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/sportsedge/internal/calibration"
	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/models"
	"github.com/sawpanic/sportsedge/internal/position"
)

// ScoreEventRepo persists score_events, including corrections,
// satisfying decision.EventPersister.
type ScoreEventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// SaveScoreEvent inserts an immutable ScoreEvent row.
func (r *ScoreEventRepo) SaveScoreEvent(ev feed.ScoreEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO score_events
			(id, fixture_id, kind, point_value, timestamp, provider, consensus_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.FixtureID, string(ev.Kind), ev.PointValue, ev.Timestamp, ev.Provider, ev.ConsensusCount,
	)
	return err
}

// RecentByFixture returns the most recent score events for a fixture, newest
// first, for the dashboard's /events/recent endpoint.
func (r *ScoreEventRepo) RecentByFixture(ctx context.Context, fixtureID string, limit int) ([]feed.ScoreEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, fixture_id, kind, point_value, timestamp, provider, consensus_count
		FROM score_events WHERE fixture_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		fixtureID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []feed.ScoreEvent
	for rows.Next() {
		var ev feed.ScoreEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.FixtureID, &kind, &ev.PointValue, &ev.Timestamp, &ev.Provider, &ev.ConsensusCount); err != nil {
			return nil, err
		}
		ev.Kind = feed.Kind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteOlderThan prunes score_events past the retention window.
func (r *ScoreEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM score_events WHERE timestamp < $1`, cutoff)
	return err
}

// PositionRepo persists the position table, including closed positions used
// by the Calibration Trainer's resolved-outcome collection.
type PositionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Upsert inserts or updates a Position row by ID.
func (r *PositionRepo) Upsert(ctx context.Context, p *position.Position) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (
			id, market_id, token_id, sport, side, stake, entry_price, entry_size,
			stop_price, take_price, opened_at, entry_quote_source, entry_quote_age_ms,
			entry_raw_prob, entry_calib_prob, state, exit_price, exit_reason, closed_at,
			realized_gross_pnl, realized_net_pnl
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
		)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			exit_price = EXCLUDED.exit_price,
			exit_reason = EXCLUDED.exit_reason,
			closed_at = EXCLUDED.closed_at,
			realized_gross_pnl = EXCLUDED.realized_gross_pnl,
			realized_net_pnl = EXCLUDED.realized_net_pnl`,
		p.ID, p.MarketID, p.TokenID, p.Sport, string(p.Side), p.Stake, p.EntryPrice, p.EntrySize,
		p.StopPrice, p.TakePrice, p.OpenedAt, string(p.EntryQuoteSource), p.EntryQuoteAgeMs,
		p.EntryRawProb, p.EntryCalibProb, string(p.State), p.ExitPrice, string(p.ExitReason), nullableTime(p.ClosedAt),
		p.RealizedGrossPnL, p.RealizedNetPnL,
	)
	return err
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// ClosedSince returns every position closed at or after `since`, used by the
// Calibration Trainer to build its training/validation folds.
func (r *PositionRepo) ClosedSince(ctx context.Context, since time.Time) ([]position.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, market_id, sport, entry_raw_prob, entry_calib_prob, closed_at, exit_reason, exit_price, realized_net_pnl
		FROM positions WHERE state = 'closed' AND closed_at >= $1 ORDER BY closed_at ASC`,
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.Position
	for rows.Next() {
		var p position.Position
		var exitReason string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.Sport, &p.EntryRawProb, &p.EntryCalibProb, &p.ClosedAt, &exitReason, &p.ExitPrice, &p.RealizedNetPnL); err != nil {
			return nil, err
		}
		p.ExitReason = position.CloseReason(exitReason)
		p.State = position.StateClosed
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolvedOutcomes adapts closed, venue-resolved positions into calibration
// training records: a resolution price of 1 means the held side won.
func (r *PositionRepo) ResolvedOutcomes(ctx context.Context, since time.Time) ([]calibration.Outcome, error) {
	closed, err := r.ClosedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	out := make([]calibration.Outcome, 0, len(closed))
	for _, p := range closed {
		if p.ExitReason != position.ReasonMarketResolved {
			continue
		}
		out = append(out, calibration.Outcome{
			Sport:    models.Sport(p.Sport),
			RawProb:  p.EntryRawProb,
			Won:      p.ExitPrice >= 0.5,
			ClosedAt: p.ClosedAt,
		})
	}
	return out, nil
}

// BalanceHistoryRepo records balance snapshots over time.
type BalanceHistoryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Record inserts a point-in-time balance snapshot.
func (r *BalanceHistoryRepo) Record(ctx context.Context, at time.Time, balance float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO balance_history (at, balance) VALUES ($1, $2)`, at, balance)
	return err
}

// Range returns balance snapshots between from and to, ascending, for the
// dashboard's /balance/history endpoint.
func (r *BalanceHistoryRepo) Range(ctx context.Context, from, to time.Time) (map[time.Time]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT at, balance FROM balance_history WHERE at BETWEEN $1 AND $2 ORDER BY at ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[time.Time]float64)
	for rows.Next() {
		var at time.Time
		var balance float64
		if err := rows.Scan(&at, &balance); err != nil {
			return nil, err
		}
		out[at] = balance
	}
	return out, rows.Err()
}

// DeleteOlderThan prunes balance_history past the retention window.
func (r *BalanceHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM balance_history WHERE at < $1`, cutoff)
	return err
}

// CalibrationRepo persists per-sport Platt coefficients and training
// diagnostics.
type CalibrationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// SaveDiagnostics records a training run's outcome, kept for audit
// regardless of whether the candidate was promoted.
func (r *CalibrationRepo) SaveDiagnostics(ctx context.Context, sport models.Sport, trainedAt time.Time, sampleCount int, logLoss, brier float64, promoted bool, coef models.Coefficients) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO model_calibrations (sport, trained_at, sample_count, log_loss, brier, promoted, coef_a, coef_b)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		string(sport), trainedAt, sampleCount, logLoss, brier, promoted, coef.A, coef.B,
	)
	return err
}

// LatestPromoted returns the most recently promoted coefficients for a sport,
// used to warm-start the Calibrator on restart.
func (r *CalibrationRepo) LatestPromoted(ctx context.Context, sport models.Sport) (models.Coefficients, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var coef models.Coefficients
	err := r.db.QueryRowxContext(ctx, `
		SELECT coef_a, coef_b FROM model_calibrations
		WHERE sport = $1 AND promoted = true ORDER BY trained_at DESC LIMIT 1`,
		string(sport)).Scan(&coef.A, &coef.B)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Coefficients{}, false, nil
		}
		return models.Coefficients{}, false, err
	}
	return coef, true, nil
}
