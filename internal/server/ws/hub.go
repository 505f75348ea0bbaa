// Package ws pushes engine status snapshots and journal events to dashboard
// clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/server/handler"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	defaultStatusInterval = time.Second
)

// Message types sent to clients.
const (
	TypeStatus = "status"
	TypeEvent  = "event"
	TypeOrder  = "order"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Subscriber is satisfied by the Redis signal bus.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Envelope is the frame every client receives.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg narrows or widens the message types a client receives:
// {"action":"unsubscribe","types":["status"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

// Config selects the sources the hub forwards.
type Config struct {
	// Symbol names the Redis channels "events:{symbol}" and "orders:{symbol}".
	Symbol         string
	StatusInterval time.Duration
}

// Hub fans messages out to connected clients.
type Hub struct {
	src      handler.StatusSource
	sub      Subscriber
	cfg      Config
	logger   *slog.Logger
	mu       sync.RWMutex
	clients  map[*client]bool
	incoming chan []byte
	register chan *client
	leave    chan *client
	done     chan struct{}
}

// NewHub creates a hub. sub may be nil, in which case only status
// snapshots are pushed.
func NewHub(src handler.StatusSource, sub Subscriber, cfg Config, logger *slog.Logger) *Hub {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	return &Hub{
		src:      src,
		sub:      sub,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "ws_hub")),
		clients:  make(map[*client]bool),
		incoming: make(chan []byte, 256),
		register: make(chan *client),
		leave:    make(chan *client),
		done:     make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.sub != nil && h.cfg.Symbol != "" {
		go h.relay(ctx, domain.EventsChannel(h.cfg.Symbol), TypeEvent)
		go h.relay(ctx, domain.OrdersChannel(h.cfg.Symbol), TypeOrder)
	}

	ticker := time.NewTicker(h.cfg.StatusInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.ClientCount()))
			if msg, ok := h.statusFrame(); ok {
				c.deliver(TypeStatus, msg)
			}

		case c := <-h.leave:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.ClientCount()))

		case <-ticker.C:
			if msg, ok := h.statusFrame(); ok {
				h.fanout(TypeStatus, msg)
			}

		case msg := <-h.incoming:
			var env Envelope
			if err := json.Unmarshal(msg, &env); err == nil {
				h.fanout(env.Type, msg)
			}
		}
	}
}

// Broadcast queues payload for every client subscribed to msgType. It drops
// the message when the hub is backed up.
func (h *Hub) Broadcast(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	select {
	case h.incoming <- frame:
	default:
		h.logger.Warn("ws: hub backed up, dropping message", slog.String("type", msgType))
	}
}

func (h *Hub) relay(ctx context.Context, channel, msgType string) {
	msgCh, err := h.sub.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", channel))
				return
			}
			h.Broadcast(msgType, json.RawMessage(data))
		}
	}
}

func (h *Hub) statusFrame() ([]byte, bool) {
	st := h.src.Status()
	if st == nil {
		return nil, false
	}
	raw, err := json.Marshal(handler.NewStatusView(st))
	if err != nil {
		return nil, false
	}
	frame, err := json.Marshal(Envelope{Type: TypeStatus, Payload: raw})
	return frame, err == nil
}

func (h *Hub) fanout(msgType string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.deliver(msgType, frame)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS handles GET /ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{TypeStatus: true, TypeEvent: true, TypeOrder: true},
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) deliver(msgType string, frame []byte) {
	if !c.isSubscribed(msgType) {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.hub.logger.Warn("ws: dropping message for slow client")
	}
}

func (c *client) isSubscribed(msgType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[msgType]
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) != nil {
			continue
		}
		c.mu.Lock()
		for _, t := range sub.Types {
			switch sub.Action {
			case "subscribe":
				c.subs[t] = true
			case "unsubscribe":
				delete(c.subs, t)
			}
		}
		c.mu.Unlock()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
