// Package dashboard implements the read-only operator HTTP surface: a
// gorilla/mux router exposing nothing but GET endpoints over in-memory
// engine state.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/balance"
	"github.com/sawpanic/sportsedge/internal/decision"
	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/feedhealth"
	"github.com/sawpanic/sportsedge/internal/position"
	"github.com/sawpanic/sportsedge/internal/risk"
)

// EventHistory supplies recent score events for a fixture; satisfied by
// *postgres.ScoreEventRepo.
type EventHistory interface {
	RecentByFixture(ctx context.Context, fixtureID string, limit int) ([]feed.ScoreEvent, error)
}

// BalanceHistory supplies balance snapshots over a time range; satisfied
// directly by *postgres.BalanceHistoryRepo, which cmd/sportsedge passes in.
type BalanceHistory interface {
	Range(ctx context.Context, from, to time.Time) (map[time.Time]float64, error)
}

// Server is the read-only dashboard HTTP server.
type Server struct {
	router  *mux.Router
	httpSrv *http.Server

	positions  *position.Store
	balance    *balance.Tracker
	riskBook   *risk.Book
	feedHealth *feedhealth.Monitor
	history    BalanceHistory
	events     EventHistory
	rejections *decision.ReasonLog
}

// Config holds bind address and timeouts. Metrics, when non-nil, is mounted
// at /metrics on the same router.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Metrics      http.Handler
}

// DefaultConfig returns conservative localhost-friendly defaults.
func DefaultConfig() Config {
	return Config{Addr: ":8088", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
}

// New constructs a Server bound to the given engine state. It does not start
// listening until Run is called.
func New(cfg Config, positions *position.Store, bal *balance.Tracker, riskBook *risk.Book, feedHealth *feedhealth.Monitor, history BalanceHistory, events EventHistory, rejections *decision.ReasonLog) *Server {
	s := &Server{
		positions:  positions,
		balance:    bal,
		riskBook:   riskBook,
		feedHealth: feedHealth,
		history:    history,
		events:     events,
		rejections: rejections,
	}

	router := mux.NewRouter()
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	router.HandleFunc("/feed-health", s.handleFeedHealth).Methods(http.MethodGet)
	router.HandleFunc("/balance/history", s.handleBalanceHistory).Methods(http.MethodGet)
	router.HandleFunc("/events/recent", s.handleRecentEvents).Methods(http.MethodGet)
	router.HandleFunc("/gates/recent", s.handleRecentRejections).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}
	s.router = router

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("dashboard: failed to encode response")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot := s.riskBook.Snapshot()
	writeJSON(w, map[string]interface{}{
		"available_balance": s.balance.Available(),
		"open_positions":    len(s.positions.AllOpen()),
		"day_realized_pnl":  snapshot.DayRealizedPnL,
		"day_trade_count":   snapshot.DayTradeCount,
		"breaker_tripped":   snapshot.BreakerTripped,
		"feed_health":       s.feedHealth.Stats(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.positions.AllOpen())
}

func (s *Server) handleFeedHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.feedHealth.Stats())
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	fixtureID := r.URL.Query().Get("fixture_id")
	if s.events == nil {
		http.Error(w, "event history unavailable", http.StatusServiceUnavailable)
		return
	}
	if fixtureID == "" {
		http.Error(w, "fixture_id query parameter is required", http.StatusBadRequest)
		return
	}
	events, err := s.events.RecentByFixture(r.Context(), fixtureID, 50)
	if err != nil {
		http.Error(w, fmt.Sprintf("recent events: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "balance history unavailable", http.StatusServiceUnavailable)
		return
	}
	to := time.Now()
	from := to.Add(-7 * 24 * time.Hour)
	points, err := s.history.Range(r.Context(), from, to)
	if err != nil {
		http.Error(w, fmt.Sprintf("balance history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, points)
}

func (s *Server) handleRecentRejections(w http.ResponseWriter, r *http.Request) {
	if s.rejections == nil {
		http.Error(w, "rejection history unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.rejections.Recent(100))
}
