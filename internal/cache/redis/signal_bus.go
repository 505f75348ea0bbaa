package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

const (
	// streamMaxLen is the approximate cap applied on every XADD.
	streamMaxLen int64 = 10000

	subscriberBuffer = 128
)

// SignalBus carries engine events: Pub/Sub for live dashboards and a
// trimmed stream per symbol for the journal.
type SignalBus struct {
	rdb     *redis.Client
	dropped atomic.Int64
}

// NewSignalBus creates a SignalBus on c's pool.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns payloads from channel until ctx ends. Channels with
// glob characters use PSUBSCRIBE. A reader that falls behind loses
// messages rather than stalling the Redis connection; see Dropped.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					if n := sb.dropped.Add(1); n == 1 || n%1000 == 0 {
						slog.Default().WarnContext(ctx, "signal bus subscriber lagging",
							slog.String("channel", channel),
							slog.Int64("dropped", n),
						)
					}
				}
			}
		}
	}()
	return out, nil
}

// Dropped returns how many messages slow subscribers have lost.
func (sb *SignalBus) Dropped() int64 { return sb.dropped.Load() }

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends payload under the "payload" field.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
