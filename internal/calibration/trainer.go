// Package calibration retrains the per-sport Platt scaling coefficients from
// resolved outcomes: on a fixed interval it collects closed positions per
// sport, fits candidate coefficients on a time-ordered training fold,
// evaluates them on a held-out validation fold, and promotes only when the
// candidate clears both a minimum log-loss improvement and a Brier
// improvement with enough samples — so live calibration never regresses.
package calibration

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/models"
)

// Outcome is one resolved position's calibration-relevant record.
type Outcome struct {
	Sport    models.Sport
	RawProb  float64 // model's raw probability that the held side would win
	Won      bool    // whether the held side actually won
	ClosedAt time.Time
}

// OutcomeSource supplies resolved positions for a lookback window; satisfied
// by an adapter over *postgres.PositionRepo.
type OutcomeSource interface {
	ResolvedOutcomes(ctx context.Context, since time.Time) ([]Outcome, error)
}

// DiagnosticsSink persists every training run's result, promoted or not;
// satisfied directly by *postgres.CalibrationRepo.
type DiagnosticsSink interface {
	SaveDiagnostics(ctx context.Context, sport models.Sport, trainedAt time.Time, sampleCount int, logLoss, brier float64, promoted bool, coef models.Coefficients) error
}

// Config parameterizes the training cadence and promotion gate.
type Config struct {
	Interval              time.Duration
	LookbackWindow        time.Duration
	MinSampleCount        int
	MinLogLossImprovement float64 // candidate must beat baseline by at least this fraction
	MinBrierImprovement   float64 // same, on the Brier score
	ValidationFraction    float64 // trailing fraction of samples held out for validation
	LearningRate          float64
	Iterations            int
}

// DefaultConfig returns the default cadence and promotion thresholds.
func DefaultConfig() Config {
	return Config{
		Interval:              time.Hour,
		LookbackWindow:        30 * 24 * time.Hour,
		MinSampleCount:        200,
		MinLogLossImprovement: 0.02,
		MinBrierImprovement:   0.005,
		ValidationFraction:    0.2,
		LearningRate:          0.05,
		Iterations:            500,
	}
}

// Trainer runs the periodic fit-evaluate-promote cycle.
type Trainer struct {
	cfg        Config
	source     OutcomeSource
	sink       DiagnosticsSink
	calibrator *models.Calibrator
	sports     []models.Sport

	onPromote func(sport models.Sport)
}

// New constructs a Trainer over every sport the engine trades.
func New(cfg Config, source OutcomeSource, sink DiagnosticsSink, calibrator *models.Calibrator, sports []models.Sport) *Trainer {
	return &Trainer{cfg: cfg, source: source, sink: sink, calibrator: calibrator, sports: sports}
}

// OnPromote registers a callback invoked once per promoted sport, used to
// feed promotion counters into telemetry.
func (t *Trainer) OnPromote(fn func(sport models.Sport)) {
	t.onPromote = fn
}

// Run blocks, retraining every sport on cfg.Interval until ctx is cancelled.
func (t *Trainer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single training pass over every sport; also invoked
// directly by the `calibrate` CLI command.
func (t *Trainer) RunOnce(ctx context.Context) {
	since := time.Now().Add(-t.cfg.LookbackWindow)
	all, err := t.source.ResolvedOutcomes(ctx, since)
	if err != nil {
		log.Warn().Err(err).Msg("calibration trainer: failed to load resolved outcomes")
		return
	}

	bySport := make(map[models.Sport][]Outcome)
	for _, o := range all {
		bySport[o.Sport] = append(bySport[o.Sport], o)
	}

	for _, sport := range t.sports {
		t.trainSport(ctx, sport, bySport[sport])
	}
}

// trainSport fits and conditionally promotes coefficients for one sport.
// Promotion requires the candidate to beat the incumbent on both validation
// log-loss and Brier score by the configured margins.
func (t *Trainer) trainSport(ctx context.Context, sport models.Sport, outcomes []Outcome) {
	if len(outcomes) < t.cfg.MinSampleCount {
		log.Debug().Str("sport", string(sport)).Int("samples", len(outcomes)).Msg("calibration: insufficient samples, skipping")
		return
	}

	sortByTime(outcomes)
	splitAt := int(float64(len(outcomes)) * (1 - t.cfg.ValidationFraction))
	if splitAt <= 0 || splitAt >= len(outcomes) {
		return
	}
	train, validate := outcomes[:splitAt], outcomes[splitAt:]

	candidate := fitPlatt(train, t.cfg.LearningRate, t.cfg.Iterations)
	candidateLoss, candidateBrier := evaluate(validate, candidate)
	baselineLoss, baselineBrier := evaluate(validate, t.calibrator.Coefficients(sport))

	promoted := false
	if baselineLoss > 0 && baselineBrier > 0 {
		lossGain := (baselineLoss - candidateLoss) / baselineLoss
		brierGain := (baselineBrier - candidateBrier) / baselineBrier
		if lossGain >= t.cfg.MinLogLossImprovement && brierGain >= t.cfg.MinBrierImprovement {
			t.calibrator.Promote(sport, candidate)
			promoted = true
			if t.onPromote != nil {
				t.onPromote(sport)
			}
		}
	}

	if err := t.sink.SaveDiagnostics(ctx, sport, time.Now(), len(outcomes), candidateLoss, candidateBrier, promoted, candidate); err != nil {
		log.Warn().Err(err).Str("sport", string(sport)).Msg("calibration: failed to persist diagnostics")
	}

	log.Info().
		Str("sport", string(sport)).
		Int("samples", len(outcomes)).
		Float64("candidate_log_loss", candidateLoss).
		Float64("baseline_log_loss", baselineLoss).
		Bool("promoted", promoted).
		Msg("calibration training run complete")
}

func sortByTime(outcomes []Outcome) {
	// insertion sort: training batches are small (bounded by the lookback
	// window) and this keeps the hot path allocation-free.
	for i := 1; i < len(outcomes); i++ {
		j := i
		for j > 0 && outcomes[j-1].ClosedAt.After(outcomes[j].ClosedAt) {
			outcomes[j-1], outcomes[j] = outcomes[j], outcomes[j-1]
			j--
		}
	}
}

// fitPlatt fits p_cal = sigma(a*logit(p_raw) + b) via batch gradient descent
// on the logistic log-loss.
func fitPlatt(train []Outcome, lr float64, iterations int) models.Coefficients {
	a, b := 1.0, 0.0
	n := float64(len(train))

	for iter := 0; iter < iterations; iter++ {
		var gradA, gradB float64
		for _, o := range train {
			x := logit(models.Clamp(o.RawProb))
			y := 0.0
			if o.Won {
				y = 1.0
			}
			pred := sigmoid(a*x + b)
			err := pred - y
			gradA += err * x
			gradB += err
		}
		a -= lr * gradA / n
		b -= lr * gradB / n
	}

	return models.Coefficients{A: a, B: b}
}

// evaluate computes held-out log-loss and Brier score for a candidate set of
// coefficients.
func evaluate(validate []Outcome, coef models.Coefficients) (logLoss, brier float64) {
	n := float64(len(validate))
	if n == 0 {
		return 0, 0
	}

	for _, o := range validate {
		x := logit(models.Clamp(o.RawProb))
		p := models.Clamp(sigmoid(coef.A*x + coef.B))
		y := 0.0
		if o.Won {
			y = 1.0
		}
		logLoss += -(y*math.Log(p) + (1-y)*math.Log(1-p))
		brier += (p - y) * (p - y)
	}
	return logLoss / n, brier / n
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
