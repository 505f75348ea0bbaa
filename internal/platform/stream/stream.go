// Package stream runs a long-lived WebSocket subscription: dial, subscribe,
// read until the connection drops, then reconnect with exponential backoff.
// The Studio activity feed and the Polygon market feed are both built on it.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// Config describes one subscription.
type Config struct {
	Name   string
	URL    string
	Header http.Header

	// Zero values fall back to 2s doubling up to 60s.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// Conn is a connected socket. Writes are serialized.
type Conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

// WriteJSON sends v as a text frame.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// OnConnect runs once per connection before the read loop starts; it sends
// authentication and subscription commands.
type OnConnect func(ctx context.Context, c *Conn) error

// OnMessage handles one inbound frame. Returning domain.ErrQueueClosed stops
// Run; any other error is logged and the frame dropped.
type OnMessage func(ctx context.Context, data []byte) error

// Run keeps the subscription alive until ctx is cancelled or onMessage
// reports that its consumer has gone away.
func Run(ctx context.Context, cfg Config, logger *slog.Logger, onConnect OnConnect, onMessage OnMessage) error {
	base := cfg.ReconnectDelay
	if base <= 0 {
		base = reconnectDelay
	}
	maxDelay := cfg.MaxReconnectDelay
	if maxDelay < base {
		maxDelay = max(maxReconnectDelay, base)
	}
	logger = logger.With(slog.String("stream", cfg.Name))

	delay := base
	for {
		connected, err := session(ctx, cfg, logger, onConnect, onMessage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, domain.ErrQueueClosed) {
			return nil
		}
		if connected {
			delay = base
		}

		logger.WarnContext(ctx, "stream disconnected, reconnecting",
			slog.Duration("backoff", delay),
			slog.String("error", errString(err)),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

// session runs one connection to completion. connected reports whether the
// subscription was established, which resets the backoff.
func session(ctx context.Context, cfg Config, logger *slog.Logger, onConnect OnConnect, onMessage OnMessage) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return false, fmt.Errorf("%s: connect: %w", cfg.Name, err)
	}
	conn := &Conn{ws: ws}

	sctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = ws.Close()
		wg.Wait()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := onConnect(sctx, conn); err != nil {
		return false, fmt.Errorf("%s: subscribe: %w", cfg.Name, err)
	}
	logger.InfoContext(ctx, "stream connected", slog.String("url", cfg.URL))

	wg.Add(2)
	go func() {
		defer wg.Done()
		pingLoop(sctx, conn)
	}()
	go func() {
		defer wg.Done()
		<-sctx.Done()
		// Unblock ReadMessage on shutdown.
		_ = conn.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("%s: read: %w: %v", cfg.Name, domain.ErrWSDisconnect, err)
		}
		if err := onMessage(sctx, message); err != nil {
			if errors.Is(err, domain.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return true, err
			}
			logger.WarnContext(ctx, "frame dropped", slog.String("error", err.Error()))
		}
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func pingLoop(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
