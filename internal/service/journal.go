package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

const (
	defaultJournalCapacity = 100_000
	journalQueueSize       = 4096
	sinkTimeout            = 5 * time.Second
)

type journalWrite struct {
	entry domain.JournalEntry
	order *domain.Order
}

// Journal keeps the session's record in memory and forwards it to the
// audit log, the order store and the Redis journal stream. Recording never
// blocks: the sinks are written by Run, and entries that do not fit the
// queue are counted and skipped for the sinks only.
type Journal struct {
	symbol   string
	audit    domain.AuditStore
	orders   domain.OrderStore
	bus      domain.SignalBus
	logger   *slog.Logger
	started  time.Time
	capacity int

	mu      sync.Mutex
	seq     int64
	entries []domain.JournalEntry

	pending chan journalWrite
	dropped atomic.Int64
}

// JournalOption customises a Journal.
type JournalOption func(*Journal)

// WithAuditStore writes every entry to the audit log.
func WithAuditStore(s domain.AuditStore) JournalOption {
	return func(j *Journal) { j.audit = s }
}

// WithOrderStore upserts every order update.
func WithOrderStore(s domain.OrderStore) JournalOption {
	return func(j *Journal) { j.orders = s }
}

// WithSignalBus appends entries to the stream "journal:{symbol}" and
// publishes them on "events:{symbol}".
func WithSignalBus(b domain.SignalBus) JournalOption {
	return func(j *Journal) { j.bus = b }
}

// WithCapacity bounds the in-memory journal; the oldest entries go first.
func WithCapacity(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.capacity = n
		}
	}
}

// NewJournal creates a Journal for one engine session.
func NewJournal(symbol string, logger *slog.Logger, opts ...JournalOption) *Journal {
	j := &Journal{
		symbol:   symbol,
		logger:   logger.With(slog.String("component", "journal")),
		started:  time.Now(),
		capacity: defaultJournalCapacity,
		pending:  make(chan journalWrite, journalQueueSize),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Started is when the session began.
func (j *Journal) Started() time.Time { return j.started }

// Dropped counts entries that skipped the sinks because the queue was full.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

func (j *Journal) Record(_ context.Context, event string, detail map[string]any) {
	j.append(event, detail, nil)
}

func (j *Journal) RecordOrder(_ context.Context, o domain.Order) {
	j.append("order", orderDetail(o), &o)
}

func (j *Journal) RecordTrade(_ context.Context, t domain.Trade) {
	j.append("trade", map[string]any{
		"trade_id": t.ID,
		"order_id": t.OrderID,
		"symbol":   t.Symbol,
		"side":     string(t.Side),
		"quantity": t.Quantity,
		"price":    t.Price.StringFixed(2),
	}, nil)
}

func (j *Journal) append(event string, detail map[string]any, order *domain.Order) {
	j.mu.Lock()
	j.seq++
	entry := domain.JournalEntry{Seq: j.seq, Event: event, Detail: detail, At: time.Now()}
	if len(j.entries) >= j.capacity {
		j.entries = append(j.entries[:0], j.entries[len(j.entries)-j.capacity+1:]...)
	}
	j.entries = append(j.entries, entry)
	j.mu.Unlock()

	if j.audit == nil && j.orders == nil && j.bus == nil {
		return
	}
	select {
	case j.pending <- journalWrite{entry: entry, order: order}:
	default:
		j.dropped.Add(1)
	}
}

// Entries returns a copy of the in-memory journal, oldest first.
func (j *Journal) Entries() []domain.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Recent returns up to n of the newest entries, newest first.
func (j *Journal) Recent(n int) []domain.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]domain.JournalEntry, 0, n)
	for i := len(j.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.entries[i])
	}
	return out
}

// Run writes queued entries to the sinks until ctx is cancelled, then
// flushes what is still queued.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case w := <-j.pending:
			j.write(ctx, w)
		case <-ctx.Done():
			j.flush()
			return nil
		}
	}
}

func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for {
		select {
		case w := <-j.pending:
			j.write(ctx, w)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, w journalWrite) {
	if j.audit != nil {
		if err := j.audit.Log(ctx, w.entry.Event, w.entry.Detail); err != nil {
			j.warn(ctx, "audit log failed", w.entry, err)
		}
	}
	if j.orders != nil && w.order != nil {
		if err := j.orders.Upsert(ctx, *w.order); err != nil {
			j.warn(ctx, "order upsert failed", w.entry, err)
		}
	}
	if j.bus != nil {
		payload, err := json.Marshal(w.entry)
		if err != nil {
			j.warn(ctx, "marshal entry failed", w.entry, err)
			return
		}
		if err := j.bus.StreamAppend(ctx, domain.JournalStream(j.symbol), payload); err != nil {
			j.warn(ctx, "stream append failed", w.entry, err)
		}
		if err := j.bus.Publish(ctx, domain.EventsChannel(j.symbol), payload); err != nil {
			j.warn(ctx, "publish failed", w.entry, err)
		}
	}
}

func (j *Journal) warn(ctx context.Context, msg string, e domain.JournalEntry, err error) {
	j.logger.WarnContext(ctx, msg,
		slog.String("event", e.Event),
		slog.Int64("seq", e.Seq),
		slog.String("error", err.Error()),
	)
}

func orderDetail(o domain.Order) map[string]any {
	return map[string]any{
		"order_id":        o.ID,
		"reference_id":    o.ReferenceID,
		"symbol":          o.Symbol,
		"side":            string(o.Side),
		"quantity":        o.Quantity,
		"filled_quantity": o.FilledQuantity,
		"price":           o.Price.StringFixed(2),
		"state":           string(o.State),
		"text":            o.Text,
	}
}
