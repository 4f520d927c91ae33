// Package telemetry exposes the engine's Prometheus metrics: a single
// struct of pre-registered collectors constructed once at startup.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every sportsedge Prometheus collector.
type Registry struct {
	FeedQualityScore    prometheus.Gauge
	FeedFallbackRate    prometheus.Gauge
	FeedWSAgeMs         prometheus.Gauge
	FeedPaused          prometheus.Gauge

	DecisionOutcomes *prometheus.CounterVec // label: reason
	GateRejections   *prometheus.CounterVec // label: gate

	PositionsOpened prometheus.Counter
	PositionsClosed *prometheus.CounterVec // label: reason
	OpenExposure    prometheus.Gauge
	RealizedPnLTotal prometheus.Gauge

	RiskBreakerTripped prometheus.Gauge
	DayTradeCount      prometheus.Gauge

	CalibrationPromotions *prometheus.CounterVec // label: sport
}

// NewRegistry constructs and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{
		FeedQualityScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_feed_quality_score", Help: "Current feed-health quality score in [0,1].",
		}),
		FeedFallbackRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_feed_fallback_rate", Help: "EWMA fraction of quotes served from REST fallback.",
		}),
		FeedWSAgeMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_feed_ws_age_ms", Help: "EWMA age in milliseconds of WS quotes.",
		}),
		FeedPaused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_feed_paused", Help: "1 if new entries are currently paused by the feed-health monitor.",
		}),
		DecisionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsedge_decision_outcomes_total", Help: "Decision Engine outcomes by reason code.",
		}, []string{"reason"}),
		GateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsedge_gate_rejections_total", Help: "Gate rejections by gate name.",
		}, []string{"gate"}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sportsedge_positions_opened_total", Help: "Total positions opened.",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsedge_positions_closed_total", Help: "Positions closed by exit reason.",
		}, []string{"reason"}),
		OpenExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_open_exposure_dollars", Help: "Total stake currently committed to open positions.",
		}),
		RealizedPnLTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_realized_pnl_total", Help: "Realized net PnL of positions closed in the current UTC day.",
		}),
		RiskBreakerTripped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_risk_breaker_tripped", Help: "1 if the day-level risk circuit breaker is tripped.",
		}),
		DayTradeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sportsedge_day_trade_count", Help: "Number of trades opened so far in the current UTC day.",
		}),
		CalibrationPromotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsedge_calibration_promotions_total", Help: "Calibration coefficient promotions by sport.",
		}, []string{"sport"}),
	}

	prometheus.MustRegister(
		r.FeedQualityScore, r.FeedFallbackRate, r.FeedWSAgeMs, r.FeedPaused,
		r.DecisionOutcomes, r.GateRejections,
		r.PositionsOpened, r.PositionsClosed, r.OpenExposure, r.RealizedPnLTotal,
		r.RiskBreakerTripped, r.DayTradeCount, r.CalibrationPromotions,
	)
	return r
}

// Handler returns the standard Prometheus scrape handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOutcome folds a Decision Engine Outcome into the decision/gate
// counters; accepted outcomes are recorded under reason "accepted".
func (r *Registry) RecordOutcome(reason string) {
	r.DecisionOutcomes.WithLabelValues(reason).Inc()
	if reason != "accepted" && reason != "" {
		r.GateRejections.WithLabelValues(reason).Inc()
	}
}
