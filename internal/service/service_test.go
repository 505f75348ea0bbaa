package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *memBus) count(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streamed[stream])
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func (m *memOrders) Upsert(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) ListBySymbol(context.Context, string, domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (m *memOrders) get(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

func TestJournalKeepsEntriesInOrder(t *testing.T) {
	j := NewJournal("AAPL", testLogger())
	ctx := context.Background()

	j.Record(ctx, "submit", map[string]any{"price": "99.50"})
	j.RecordOrder(ctx, domain.Order{ID: "o1", Price: decimal.RequireFromString("99.5"), State: domain.OrderStateOpen})
	j.RecordTrade(ctx, domain.Trade{ID: "t1", OrderID: "o1", Quantity: 2, Price: decimal.RequireFromString("99.5")})

	entries := j.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"submit", "order", "trade"}, []string{entries[0].Event, entries[1].Event, entries[2].Event})
	assert.Equal(t, int64(3), entries[2].Seq)
	assert.Equal(t, "99.50", entries[1].Detail["price"])

	recent := j.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "trade", recent[0].Event)
	assert.Equal(t, "order", recent[1].Event)
}

func TestJournalCapacityDropsOldest(t *testing.T) {
	j := NewJournal("AAPL", testLogger(), WithCapacity(3))
	for range 5 {
		j.Record(context.Background(), "tick", nil)
	}
	entries := j.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].Seq)
	assert.Equal(t, int64(5), entries[2].Seq)
}

func TestJournalRunWritesSinks(t *testing.T) {
	audit := &memAudit{}
	orders := &memOrders{orders: map[string]domain.Order{}}
	bus := newMemBus()
	j := NewJournal("AAPL", testLogger(), WithAuditStore(audit), WithOrderStore(orders), WithSignalBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	j.Record(ctx, "submit", map[string]any{"order_id": "o1"})
	j.RecordOrder(ctx, domain.Order{ID: "o1", Symbol: "AAPL", State: domain.OrderStateFilled})

	require.Eventually(t, func() bool { return bus.count("journal:AAPL") == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	o, ok := orders.get("o1")
	require.True(t, ok)
	assert.Equal(t, domain.OrderStateFilled, o.State)

	audit.mu.Lock()
	assert.Equal(t, []string{"submit", "order"}, audit.events)
	audit.mu.Unlock()

	var entry domain.JournalEntry
	require.NoError(t, json.Unmarshal(bus.streamed["journal:AAPL"][0], &entry))
	assert.Equal(t, "submit", entry.Event)
	assert.Len(t, bus.published["events:AAPL"], 2)
}

func TestJournalFlushesOnShutdown(t *testing.T) {
	audit := &memAudit{}
	j := NewJournal("AAPL", testLogger(), WithAuditStore(audit))
	j.Record(context.Background(), "halt", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, j.Run(ctx))
	assert.Equal(t, []string{"halt"}, audit.events)
}

func TestJournalWithoutSinksQueuesNothing(t *testing.T) {
	j := NewJournal("AAPL", testLogger())
	for range journalQueueSize + 10 {
		j.Record(context.Background(), "tick", nil)
	}
	assert.Zero(t, j.Dropped())
	assert.Len(t, j.pending, 0)
}

type stubGateway struct {
	id  string
	err error
}

func (g stubGateway) Submit(context.Context, domain.OrderRequest) (string, error) { return g.id, g.err }
func (g stubGateway) Cancel(context.Context, string) error                       { return g.err }
func (g stubGateway) CancelAll(context.Context, string) error                    { return g.err }

func TestOrderServicePassesThroughAndPublishes(t *testing.T) {
	bus := newMemBus()
	s := NewOrderService(stubGateway{id: "o1"}, bus, "AAPL", testLogger())

	id, err := s.Submit(context.Background(), domain.OrderRequest{
		Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 5, Price: decimal.RequireFromString("99.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", id)

	require.Len(t, bus.published["orders:AAPL"], 1)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(bus.published["orders:AAPL"][0], &msg))
	assert.Equal(t, "submit", msg["op"])
	assert.Equal(t, true, msg["ok"])
	assert.Equal(t, "99.50", msg["price"])
}

func TestOrderServiceKeepsGatewayError(t *testing.T) {
	gerr := &domain.GatewayError{Op: "cancel", Status: 400}
	s := NewOrderService(stubGateway{err: gerr}, nil, "AAPL", testLogger())

	err := s.Cancel(context.Background(), "o1")
	var got *domain.GatewayError
	require.True(t, errors.As(err, &got))
	assert.True(t, got.Rejection())
	assert.ErrorIs(t, s.CancelAll(context.Background(), "AAPL"), domain.ErrGateway)
}
