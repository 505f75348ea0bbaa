package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/platform/stream"
)

// ActivityHandler receives account activity in arrival order. Returning
// domain.ErrQueueClosed stops the client.
type ActivityHandler interface {
	OnOrderUpdate(ctx context.Context, o domain.Order) error
	OnTradeNotice(ctx context.Context, t domain.Trade) error
	OnPositionUpdate(ctx context.Context, p domain.Position) error
	OnReplayComplete(ctx context.Context) error
}

// ActivityClient subscribes to the account activity WebSocket. Each
// (re)connection replays the account's current state and ends the replay
// with a replay-complete frame.
type ActivityClient struct {
	url     string
	auth    string
	account string
	handler ActivityHandler
	logger  *slog.Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewActivityClient creates a client for the Studio API at baseURL.
func NewActivityClient(baseURL, auth, account string, handler ActivityHandler, logger *slog.Logger) *ActivityClient {
	return &ActivityClient{
		url:     WSURL(baseURL),
		auth:    auth,
		account: account,
		handler: handler,
		logger:  logger.With(slog.String("component", "studio_ws")),
	}
}

// SetReconnectBackoff overrides the reconnect delays.
func (a *ActivityClient) SetReconnectBackoff(base, maxDelay time.Duration) {
	a.reconnectDelay, a.maxReconnectDelay = base, maxDelay
}

// WSURL derives the activity endpoint from the REST base URL.
func WSURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v2/ws"
}

// Run blocks until ctx is cancelled or the handler stops accepting events.
func (a *ActivityClient) Run(ctx context.Context) error {
	cfg := stream.Config{
		Name:              "studio",
		URL:               a.url,
		ReconnectDelay:    a.reconnectDelay,
		MaxReconnectDelay: a.maxReconnectDelay,
	}
	return stream.Run(ctx, cfg, a.logger, a.subscribe, a.handleMessage)
}

func (a *ActivityClient) subscribe(_ context.Context, c *stream.Conn) error {
	return c.WriteJSON(SubscribeMessage{
		Authorization: a.auth,
		Payload: SubscribePayload{
			Type:      TypeSubscribeActivity,
			AccountID: a.account,
		},
	})
}

// handleMessage parses one frame and routes it to the handler.
func (a *ActivityClient) handleMessage(ctx context.Context, raw []byte) error {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	switch frame.Payload.Type {
	case TypeOrderUpdate:
		var d OrderData
		if err := json.Unmarshal(frame.Payload.Data, &d); err != nil {
			return fmt.Errorf("%w: order-update: %v", domain.ErrMalformedEvent, err)
		}
		o, err := d.ToDomain()
		if err != nil {
			return err
		}
		return a.handler.OnOrderUpdate(ctx, o)

	case TypeTradeNotice:
		var d TradeData
		if err := json.Unmarshal(frame.Payload.Data, &d); err != nil {
			return fmt.Errorf("%w: trade-notice: %v", domain.ErrMalformedEvent, err)
		}
		t, err := d.ToDomain()
		if err != nil {
			return err
		}
		return a.handler.OnTradeNotice(ctx, t)

	case TypePositionUpdate:
		var d PositionData
		if err := json.Unmarshal(frame.Payload.Data, &d); err != nil {
			return fmt.Errorf("%w: position-update: %v", domain.ErrMalformedEvent, err)
		}
		p, err := d.ToDomain()
		if err != nil {
			return err
		}
		return a.handler.OnPositionUpdate(ctx, p)

	case TypeReplayComplete:
		a.logger.InfoContext(ctx, "replay complete")
		return a.handler.OnReplayComplete(ctx)

	default:
		a.logger.DebugContext(ctx, "unhandled frame", slog.String("type", frame.Payload.Type))
		return nil
	}
}
