package studio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

type recordingHandler struct {
	events chan domain.Event
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan domain.Event, 32)}
}

func (h *recordingHandler) OnOrderUpdate(_ context.Context, o domain.Order) error {
	h.events <- domain.OrderEvent(o)
	return nil
}

func (h *recordingHandler) OnTradeNotice(_ context.Context, t domain.Trade) error {
	h.events <- domain.TradeEvent(t)
	return nil
}

func (h *recordingHandler) OnPositionUpdate(_ context.Context, p domain.Position) error {
	h.events <- domain.PositionEvent(p)
	return nil
}

func (h *recordingHandler) OnReplayComplete(context.Context) error {
	h.events <- domain.ReplayCompleteEvent()
	return nil
}

func (h *recordingHandler) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return domain.Event{}
	}
}

var activityFrames = []string{
	`{"payload":{"type":"order-update","data":{"order_id":"o1","symbol":"AAPL","side":"buy","state":"open","quantity":"5","filled_quantity":"0","price":"99.50","time_in_force":"day","updated_at":1700000000000}}}`,
	`not json`,
	`{"payload":{"type":"order-update","data":{"order_id":"o2","symbol":"AAPL","side":"sideways","state":"open"}}}`,
	`{"payload":{"type":"trade-notice","data":{"trade_id":"t1","order_id":"o1","symbol":"AAPL","side":"buy","quantity":"2","price":"99.50","created_at":1700000000100}}}`,
	`{"payload":{"type":"position-update","data":{"account_id":"ACC1","symbol":"AAPL","quantity":"-3"}}}`,
	`{"payload":{"type":"heartbeat"}}`,
	`{"payload":{"type":"replay-complete"}}`,
}

func activityServer(t *testing.T, conns *atomic.Int32) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ws", r.URL.Path)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := conns.Add(1)

		var sub SubscribeMessage
		if err := ws.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "tok", sub.Authorization)
		assert.Equal(t, TypeSubscribeActivity, sub.Payload.Type)
		assert.Equal(t, "ACC1", sub.Payload.AccountID)

		if n == 1 {
			for _, f := range activityFrames {
				if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			}
			// Drop the first connection to force a reconnect.
			return
		}
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"payload":{"type":"replay-complete"}}`))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestActivityClientDeliversEventsAndReconnects(t *testing.T) {
	var conns atomic.Int32
	srv := activityServer(t, &conns)
	defer srv.Close()

	h := newRecordingHandler()
	c := NewActivityClient(srv.URL, "tok", "ACC1", h, discardLogger())
	c.SetReconnectBackoff(10*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	ev := h.next(t)
	require.Equal(t, domain.EventOrderUpdate, ev.Kind)
	assert.Equal(t, "o1", ev.Order.ID)
	assert.Equal(t, domain.OrderStateOpen, ev.Order.State)
	assert.Equal(t, int64(5), ev.Order.Quantity)
	assert.Equal(t, "99.50", ev.Order.Price.StringFixed(2))
	assert.Equal(t, int64(1700000000000), ev.Order.UpdatedAt.UnixMilli())

	ev = h.next(t)
	require.Equal(t, domain.EventTradeNotice, ev.Kind, "malformed frames are skipped")
	assert.Equal(t, int64(2), ev.Trade.Quantity)

	ev = h.next(t)
	require.Equal(t, domain.EventPositionUpdate, ev.Kind)
	assert.Equal(t, int64(-3), ev.Position.Quantity)

	assert.Equal(t, domain.EventReplayComplete, h.next(t).Kind)
	assert.Equal(t, domain.EventReplayComplete, h.next(t).Kind, "second connection replays again")
	assert.GreaterOrEqual(t, conns.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

type closedHandler struct{ recordingHandler }

func (closedHandler) OnOrderUpdate(context.Context, domain.Order) error { return domain.ErrQueueClosed }

func TestActivityClientStopsWhenConsumerCloses(t *testing.T) {
	var conns atomic.Int32
	srv := activityServer(t, &conns)
	defer srv.Close()

	h := &closedHandler{recordingHandler: *newRecordingHandler()}
	c := NewActivityClient(srv.URL, "tok", "ACC1", h, discardLogger())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestOrderDataAcceptsNumericFields(t *testing.T) {
	var d OrderData
	require.NoError(t, json.Unmarshal([]byte(`{"order_id":"o9","symbol":"AAPL","side":"SELL","state":"Filled","quantity":10,"filled_quantity":10,"price":101.25}`), &d))
	o, err := d.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSideSell, o.Side)
	assert.Equal(t, domain.OrderStateFilled, o.State)
	assert.Equal(t, int64(10), o.FilledQuantity)
	assert.Equal(t, "101.25", o.Price.StringFixed(2))

	_, err = OrderData{OrderID: "o1", Side: "buy", Quantity: "1.5"}.ToDomain()
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
	_, err = OrderData{Side: "buy"}.ToDomain()
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}
