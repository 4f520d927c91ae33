package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSClient maintains one gorilla/websocket connection to the venue's quote
// stream and fans ticks out per-token to subscribers.
type WSClient struct {
	url string

	mu          sync.Mutex
	conn        *websocket.Conn
	subscribers map[string][]chan RawQuote
}

// NewWSClient constructs a disconnected WSClient for the given venue WS URL.
func NewWSClient(url string) *WSClient {
	return &WSClient{url: url, subscribers: make(map[string][]chan RawQuote)}
}

// Connect dials the venue WS endpoint and starts the read pump. No
// reconnection is attempted after a drop: the read pump exits and no further
// ticks are delivered.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial venue ws: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump()
	return nil
}

type wsTickMessage struct {
	TokenID   string    `json:"token_id"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *WSClient) readPump() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("venue ws read failed, connection considered dropped")
			return
		}

		var msg wsTickMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Msg("venue ws unparseable tick, dropped")
			continue
		}

		tick := RawQuote{
			TokenID:   msg.TokenID,
			BestBid:   msg.BestBid,
			BestAsk:   msg.BestAsk,
			AskSize:   msg.AskSize,
			Timestamp: msg.Timestamp,
		}

		c.mu.Lock()
		subs := c.subscribers[msg.TokenID]
		c.mu.Unlock()
		for _, ch := range subs {
			select {
			case ch <- tick:
			default: // buffer full: a slow subscriber misses this newest tick
			}
		}
	}
}

// Subscribe implements QuoteStreamer. The returned channel receives ticks for
// tokenID until Unsubscribe is called or ctx is cancelled.
func (c *WSClient) Subscribe(ctx context.Context, tokenID string) (<-chan RawQuote, error) {
	ch := make(chan RawQuote, 4)

	c.mu.Lock()
	c.subscribers[tokenID] = append(c.subscribers[tokenID], ch)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("subscribe(%s): not connected", tokenID)
	}

	req := map[string]string{"type": "subscribe", "token_id": tokenID}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("subscribe(%s): %w", tokenID, err)
	}

	go func() {
		<-ctx.Done()
		c.Unsubscribe(tokenID)
	}()

	return ch, nil
}

// Unsubscribe implements QuoteStreamer.
func (c *WSClient) Unsubscribe(tokenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subscribers[tokenID] {
		close(ch)
	}
	delete(c.subscribers, tokenID)

	if c.conn != nil {
		_ = c.conn.WriteJSON(map[string]string{"type": "unsubscribe", "token_id": tokenID})
	}
}

// Close terminates the underlying connection.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
