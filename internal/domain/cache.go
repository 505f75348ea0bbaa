package domain

import (
	"context"
	"time"
)

// PriceCache mirrors the latest quote per symbol for out-of-process readers.
type PriceCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// Lock is a held distributed lock.
type Lock interface {
	// Refresh extends the lock TTL; it fails once the lock has been lost.
	Refresh(ctx context.Context) error
	// Release is safe to call more than once.
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Bus names for one traded symbol.
func EventsChannel(symbol string) string { return "events:" + symbol }
func OrdersChannel(symbol string) string { return "orders:" + symbol }
func JournalStream(symbol string) string { return "journal:" + symbol }
