// Package polygon subscribes to Polygon.io real-time stock quotes and
// aggregates over WebSocket.
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/platform/stream"
)

// DefaultURL is the real-time stocks cluster.
const DefaultURL = "wss://socket.polygon.io/stocks"

// Handler receives market data. Returning domain.ErrQueueClosed stops the
// client.
type Handler interface {
	OnQuote(ctx context.Context, q domain.Quote) error
	OnSecondBar(ctx context.Context, b domain.Bar) error
	OnMinuteBar(ctx context.Context, b domain.Bar) error
}

// Client streams Q, A and AM events for a fixed symbol set.
type Client struct {
	url     string
	apiKey  string
	symbols []string
	handler Handler
	logger  *slog.Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewClient creates a market-data client. An empty url selects DefaultURL.
func NewClient(url, apiKey string, symbols []string, handler Handler, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:     url,
		apiKey:  apiKey,
		symbols: symbols,
		handler: handler,
		logger:  logger.With(slog.String("component", "polygon_ws")),
	}
}

// SetReconnectBackoff overrides the reconnect delays.
func (c *Client) SetReconnectBackoff(base, maxDelay time.Duration) {
	c.reconnectDelay, c.maxReconnectDelay = base, maxDelay
}

// Subscriptions returns the channel list sent on subscribe,
// e.g. "Q.AAPL,A.AAPL,AM.AAPL".
func Subscriptions(symbols []string) string {
	subs := make([]string, 0, 3*len(symbols))
	for _, prefix := range []string{EvQuote, EvSecondAgg, EvMinuteAgg} {
		for _, s := range symbols {
			subs = append(subs, prefix+"."+s)
		}
	}
	return strings.Join(subs, ",")
}

// Run blocks until ctx is cancelled or the handler stops accepting events.
func (c *Client) Run(ctx context.Context) error {
	if len(c.symbols) == 0 {
		return fmt.Errorf("polygon: no symbols to subscribe")
	}
	cfg := stream.Config{
		Name:              "polygon",
		URL:               c.url,
		ReconnectDelay:    c.reconnectDelay,
		MaxReconnectDelay: c.maxReconnectDelay,
	}
	return stream.Run(ctx, cfg, c.logger, c.subscribe, c.handleMessage)
}

func (c *Client) subscribe(_ context.Context, conn *stream.Conn) error {
	if err := conn.WriteJSON(Command{Action: "auth", Params: c.apiKey}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := conn.WriteJSON(Command{Action: "subscribe", Params: Subscriptions(c.symbols)}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// handleMessage routes every element of a frame. A bad element does not
// stop the rest of the frame.
func (c *Client) handleMessage(ctx context.Context, raw []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	var errs []error
	for _, item := range items {
		err := c.handleItem(ctx, item)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrQueueClosed), errors.Is(err, context.Canceled):
			return err
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) handleItem(ctx context.Context, item json.RawMessage) error {
	var env Envelope
	if err := json.Unmarshal(item, &env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	switch env.Ev {
	case EvQuote:
		var m QuoteMessage
		if err := json.Unmarshal(item, &m); err != nil {
			return fmt.Errorf("%w: quote: %v", domain.ErrMalformedEvent, err)
		}
		return c.handler.OnQuote(ctx, m.ToDomain())

	case EvSecondAgg, EvMinuteAgg:
		var m AggMessage
		if err := json.Unmarshal(item, &m); err != nil {
			return fmt.Errorf("%w: aggregate: %v", domain.ErrMalformedEvent, err)
		}
		if env.Ev == EvSecondAgg {
			return c.handler.OnSecondBar(ctx, m.ToDomain())
		}
		return c.handler.OnMinuteBar(ctx, m.ToDomain())

	case EvStatus:
		var m StatusMessage
		_ = json.Unmarshal(item, &m)
		if m.Status == "auth_failed" {
			c.logger.ErrorContext(ctx, "polygon auth failed", slog.String("message", m.Message))
			return fmt.Errorf("polygon: auth failed: %s", m.Message)
		}
		c.logger.InfoContext(ctx, "polygon status",
			slog.String("status", m.Status),
			slog.String("message", m.Message),
		)
		return nil

	default:
		return nil
	}
}
