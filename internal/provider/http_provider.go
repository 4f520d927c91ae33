// Package provider implements concrete Score Provider adapters:
// rate-limited, circuit-broken REST calls that never let an error escape
// as a panic.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/sportsedge/internal/feed"
	"github.com/sawpanic/sportsedge/internal/models"
	"github.com/sawpanic/sportsedge/internal/netutil/circuit"
	"github.com/sawpanic/sportsedge/internal/netutil/ratelimit"
)

// HTTPProvider polls a single score-data vendor's REST endpoint and adapts
// its payload into feed.RawObservation values.
type HTTPProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuit.GBreaker
}

// NewHTTPProvider constructs a Provider for one named vendor.
func NewHTTPProvider(name, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    ratelimit.New(5, 10),
		breaker: circuit.NewGBreaker(circuit.GConfig{
			Name:             name,
			FailureThreshold: 5,
			CooldownAfter:    30 * time.Second,
			CallTimeout:      4 * time.Second,
		}),
	}
}

// Name implements feed.Provider.
func (p *HTTPProvider) Name() string { return p.name }

type liveGameDTO struct {
	FixtureID string `json:"fixture_id"`
	Sport     string `json:"sport"`
	Home      string `json:"home"`
	Away      string `json:"away"`
	Timestamp int64  `json:"timestamp_unix_ms"`

	GoalsHome        int     `json:"goals_home"`
	GoalsAway        int     `json:"goals_away"`
	MinuteOrPeriod   int     `json:"minute_or_period"`
	SecondsRemaining float64 `json:"seconds_remaining"`
	ScoreHome        int     `json:"score_home"`
	ScoreAway        int     `json:"score_away"`
	PossessionIsHome bool    `json:"possession_is_home"`
	RunsHome         int     `json:"runs_home"`
	RunsAway         int     `json:"runs_away"`
	InningHalfIndex  int     `json:"inning_half_index"`
	Outs             int     `json:"outs"`
	BattingIsHome    bool    `json:"batting_is_home"`
	SetsWonHome      int     `json:"sets_won_home"`
	SetsWonAway      int     `json:"sets_won_away"`
	GamesHomeCurrent int     `json:"games_home_current_set"`
	GamesAwayCurrent int     `json:"games_away_current_set"`
	ServerIsHome     bool    `json:"server_is_home"`
}

// ListLive implements feed.Provider: it fetches every currently-live fixture
// for the requested sports and tolerates a vendor error by returning it to
// the caller rather than panicking, letting the Aggregator fall back to its
// other providers.
func (p *HTTPProvider) ListLive(sportSet []models.Sport) ([]feed.RawObservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	if err := p.limiter.Wait(ctx, p.baseURL); err != nil {
		return nil, err
	}

	var dtos []liveGameDTO
	err := p.breaker.Run(ctx, func(ctx context.Context) error {
		return p.getJSON(ctx, fmt.Sprintf("%s/live?sports=%s", p.baseURL, joinSports(sportSet)), &dtos)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: list live: %w", p.name, err)
	}

	out := make([]feed.RawObservation, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, feed.RawObservation{
			FixtureID:         d.FixtureID,
			Sport:             models.Sport(d.Sport),
			Home:              d.Home,
			Away:              d.Away,
			ProviderTimestamp: time.UnixMilli(d.Timestamp),
			State: models.GameState{
				Sport:               models.Sport(d.Sport),
				GoalsHome:           d.GoalsHome,
				GoalsAway:           d.GoalsAway,
				MinuteOrPeriod:      d.MinuteOrPeriod,
				SecondsRemaining:    d.SecondsRemaining,
				ScoreHome:           d.ScoreHome,
				ScoreAway:           d.ScoreAway,
				PossessionIsHome:    d.PossessionIsHome,
				RunsHome:            d.RunsHome,
				RunsAway:            d.RunsAway,
				InningHalfIndex:     d.InningHalfIndex,
				Outs:                d.Outs,
				BattingIsHome:       d.BattingIsHome,
				SetsWonHome:         d.SetsWonHome,
				SetsWonAway:         d.SetsWonAway,
				GamesHomeCurrentSet: d.GamesHomeCurrent,
				GamesAwayCurrentSet: d.GamesAwayCurrent,
				ServerIsHome:        d.ServerIsHome,
			},
		})
	}
	return out, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("vendor returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func joinSports(sports []models.Sport) string {
	s := ""
	for i, sport := range sports {
		if i > 0 {
			s += ","
		}
		s += string(sport)
	}
	return s
}
