package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// PriceCache implements domain.PriceCache. Each symbol's top of book is a
// hash at "quote:{symbol}" with fields bid, bid_size, ask, ask_size and ts
// (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A positive ttl expires quotes that
// stop updating.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

func quoteFields(q domain.Quote) map[string]any {
	return map[string]any{
		"bid":      strconv.FormatFloat(q.BidPrice, 'f', -1, 64),
		"bid_size": strconv.FormatInt(q.BidSize, 10),
		"ask":      strconv.FormatFloat(q.AskPrice, 'f', -1, 64),
		"ask_size": strconv.FormatInt(q.AskSize, 10),
		"ts":       strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
}

func parseQuote(symbol string, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Symbol: symbol}
	var err error
	if q.BidPrice, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("bid: %w", err)
	}
	if q.AskPrice, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("ask: %w", err)
	}
	if q.BidSize, err = strconv.ParseInt(vals["bid_size"], 10, 64); err != nil {
		return domain.Quote{}, fmt.Errorf("bid_size: %w", err)
	}
	if q.AskSize, err = strconv.ParseInt(vals["ask_size"], 10, 64); err != nil {
		return domain.Quote{}, fmt.Errorf("ask_size: %w", err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("ts: %w", err)
	}
	q.Timestamp = time.Unix(0, ts)
	return q, nil
}

// SetQuote stores the latest quote for its symbol.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Symbol)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, quoteFields(q))
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when nothing is cached for symbol.
func (pc *PriceCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := parseQuote(symbol, vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote %s: %w", symbol, err)
	}
	return q, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
