package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/netutil/circuit"
	"github.com/sawpanic/sportsedge/internal/netutil/ratelimit"
)

// HTTPClient is a REST adapter over the prediction market venue's public API,
// guarded by a rate limiter and a circuit breaker.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuit.GBreaker
	dryRun     bool
}

// NewHTTPClient constructs a venue REST client. In dry-run mode PlaceOrder is
// short-circuited to synthesize a fill at the displayed ask.
func NewHTTPClient(baseURL string, dryRun bool) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    ratelimit.New(8, 16),
		breaker: circuit.NewGBreaker(circuit.GConfig{
			Name:             "venue",
			FailureThreshold: 5,
			CooldownAfter:    30 * time.Second,
			CallTimeout:      8 * time.Second,
		}),
		dryRun: dryRun,
	}
}

type marketDTO struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	YesTokenID     string  `json:"yes_token_id"`
	NoTokenID      string  `json:"no_token_id"`
	FixtureID      string  `json:"fixture_id"`
	Liquidity      float64 `json:"liquidity"`
	YesDescription string  `json:"yes_description"`
	Status         string  `json:"status"`
}

// SearchMarkets implements MarketSearcher.
func (c *HTTPClient) SearchMarkets(ctx context.Context, query string) ([]Market, error) {
	if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
		return nil, err
	}

	var dtos []marketDTO
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		return c.getJSON(ctx, fmt.Sprintf("%s/markets/search?q=%s", c.baseURL, query), &dtos)
	})
	if err != nil {
		return nil, fmt.Errorf("search_markets(%q): %w", query, err)
	}

	markets := make([]Market, 0, len(dtos))
	for _, d := range dtos {
		markets = append(markets, Market{
			ID:             d.ID,
			Title:          d.Title,
			YesTokenID:     d.YesTokenID,
			NoTokenID:      d.NoTokenID,
			FixtureID:      d.FixtureID,
			Liquidity:      d.Liquidity,
			YesDescription: d.YesDescription,
			Status:         MarketStatus{Status: MarketStatusKind(d.Status)},
		})
	}
	return markets, nil
}

// GetOrderbook implements OrderBookSource.
func (c *HTTPClient) GetOrderbook(ctx context.Context, tokenID string) (OrderBook, error) {
	if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
		return OrderBook{}, err
	}

	var book OrderBook
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		return c.getJSON(ctx, fmt.Sprintf("%s/orderbook/%s", c.baseURL, tokenID), &book)
	})
	if err != nil {
		return OrderBook{}, fmt.Errorf("get_orderbook(%s): %w", tokenID, err)
	}
	return book, nil
}

// GetMarketStatus implements StatusChecker.
func (c *HTTPClient) GetMarketStatus(ctx context.Context, marketID string) (MarketStatus, error) {
	if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
		return MarketStatus{}, err
	}

	var status MarketStatus
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		return c.getJSON(ctx, fmt.Sprintf("%s/markets/%s/status", c.baseURL, marketID), &status)
	})
	if err != nil {
		return MarketStatus{}, fmt.Errorf("get_market_status(%s): %w", marketID, err)
	}
	return status, nil
}

// PlaceOrder implements OrderPlacer. In dry-run mode no venue mutation occurs;
// the fill is synthesized at the displayed ask price for the requested size.
func (c *HTTPClient) PlaceOrder(ctx context.Context, marketID string, side OrderSide, price, size float64) (OrderResult, error) {
	if c.dryRun {
		log.Debug().
			Str("market", marketID).
			Str("side", string(side)).
			Float64("price", price).
			Float64("size", size).
			Msg("dry-run order synthesized at displayed ask")
		return OrderResult{FilledPrice: price, FilledSize: size, Fees: 0, Complete: true}, nil
	}

	if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
		return OrderResult{}, err
	}

	var result OrderResult
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, fmt.Sprintf("%s/orders", c.baseURL), map[string]interface{}{
			"market": marketID, "side": side, "price": price, "size": size,
		}, &result)
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("place_order(%s): %w", marketID, err)
	}
	return result, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("venue 5xx: %d %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("venue 4xx: %d %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) postJSON(ctx context.Context, url string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("venue error: %d %s", resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
