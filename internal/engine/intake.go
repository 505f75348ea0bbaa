package engine

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Intake is the single ordered queue every producer delivers into. Any
// number of goroutines may publish; exactly one engine loop consumes.
type Intake struct {
	ch   chan domain.Event
	done chan struct{}
	once sync.Once
}

// NewIntake returns an Intake buffering up to size events.
func NewIntake(size int) *Intake {
	if size < 1 {
		size = 1
	}
	return &Intake{
		ch:   make(chan domain.Event, size),
		done: make(chan struct{}),
	}
}

// Publish enqueues ev, blocking while the queue is full. It fails with
// domain.ErrQueueClosed once the consumer has stopped.
func (in *Intake) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case <-in.done:
		return domain.ErrQueueClosed
	default:
	}
	select {
	case in.ch <- ev:
		return nil
	case <-in.done:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues ev without blocking.
func (in *Intake) TryPublish(ev domain.Event) error {
	select {
	case <-in.done:
		return domain.ErrQueueClosed
	default:
	}
	select {
	case in.ch <- ev:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// C exposes the queue for consumers other than Engine.Run.
func (in *Intake) C() <-chan domain.Event { return in.ch }

// Len returns the number of queued events.
func (in *Intake) Len() int { return len(in.ch) }

// Close stops accepting events. Queued events are dropped.
func (in *Intake) Close() {
	in.once.Do(func() { close(in.done) })
}

// Done is closed once the intake stops accepting events.
func (in *Intake) Done() <-chan struct{} { return in.done }

// RunTimer publishes a timer event every interval until ctx is cancelled or
// the intake is closed. A tick that finds the queue full is dropped.
func RunTimer(ctx context.Context, in *Intake, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.done:
			return nil
		case now := <-ticker.C:
			if err := in.TryPublish(domain.TimerEvent(now)); err == domain.ErrQueueClosed {
				return nil
			}
		}
	}
}
