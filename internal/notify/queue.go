package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

const drainTimeout = 10 * time.Second

type alert struct {
	event, title, message string
}

// Queue hands alerts to a background worker so callers on the engine loop
// never wait on a webhook.
type Queue struct {
	n      *Notifier
	ch     chan alert
	logger *slog.Logger
}

// NewQueue creates a Queue holding up to size pending alerts.
func NewQueue(n *Notifier, size int, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		n:      n,
		ch:     make(chan alert, size),
		logger: logger.With(slog.String("component", "notify_queue")),
	}
}

// Notify enqueues the alert. Filtered events are dropped here; a full queue
// returns domain.ErrQueueFull.
func (q *Queue) Notify(_ context.Context, event, title, message string) error {
	if !q.n.Allowed(event) {
		return nil
	}
	select {
	case q.ch <- alert{event: event, title: title, message: message}:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Run delivers alerts until ctx is cancelled, then sends whatever is still
// queued within a bounded time.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case a := <-q.ch:
			q.send(ctx, a)
		case <-ctx.Done():
			q.drain()
			return nil
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case a := <-q.ch:
			q.send(ctx, a)
		default:
			return
		}
	}
}

func (q *Queue) send(ctx context.Context, a alert) {
	if err := q.n.Notify(ctx, a.event, a.title, a.message); err != nil {
		q.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", a.event),
			slog.String("error", err.Error()),
		)
	}
}
