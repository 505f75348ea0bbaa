package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/engine"
	"github.com/alanyoungcy/studiobot/internal/platform/polygon"
	"github.com/alanyoungcy/studiobot/internal/platform/studio"
)

var (
	_ polygon.Handler        = (*MarketFeed)(nil)
	_ studio.ActivityHandler = (*ActivityFeed)(nil)
)

type memCache struct {
	quotes map[string]domain.Quote
	err    error
}

func (m *memCache) SetQuote(_ context.Context, q domain.Quote) error {
	if m.err != nil {
		return m.err
	}
	m.quotes[q.Symbol] = q
	return nil
}

func (m *memCache) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	q, ok := m.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func drain(in *engine.Intake) []domain.EventKind {
	var kinds []domain.EventKind
	for in.Len() > 0 {
		kinds = append(kinds, (<-in.C()).Kind)
	}
	return kinds
}

func TestMarketFeedPublishesAndMirrors(t *testing.T) {
	in := engine.NewIntake(8)
	cache := &memCache{quotes: map[string]domain.Quote{}}
	f := NewMarketFeed(in, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, f.OnQuote(ctx, domain.Quote{Symbol: "AAPL", BidPrice: 1, AskPrice: 2}))
	require.NoError(t, f.OnSecondBar(ctx, domain.Bar{Symbol: "SPY"}))
	require.NoError(t, f.OnMinuteBar(ctx, domain.Bar{Symbol: "SPY"}))

	assert.Equal(t, []domain.EventKind{domain.EventQuote, domain.EventSecondBar, domain.EventMinuteBar}, drain(in))
	q, err := cache.GetQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.AskPrice)
}

func TestMarketFeedIgnoresCacheFailures(t *testing.T) {
	in := engine.NewIntake(8)
	f := NewMarketFeed(in, &memCache{err: errors.New("redis down")}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, f.OnQuote(context.Background(), domain.Quote{Symbol: "AAPL"}))
	assert.Equal(t, 1, in.Len())
}

func TestActivityFeedPublishesInOrder(t *testing.T) {
	in := engine.NewIntake(8)
	f := NewActivityFeed(in)
	ctx := context.Background()

	require.NoError(t, f.OnOrderUpdate(ctx, domain.Order{ID: "o1"}))
	require.NoError(t, f.OnTradeNotice(ctx, domain.Trade{ID: "t1"}))
	require.NoError(t, f.OnPositionUpdate(ctx, domain.Position{Symbol: "AAPL"}))
	require.NoError(t, f.OnReplayComplete(ctx))

	assert.Equal(t, []domain.EventKind{
		domain.EventOrderUpdate, domain.EventTradeNotice, domain.EventPositionUpdate, domain.EventReplayComplete,
	}, drain(in))

	in.Close()
	assert.ErrorIs(t, f.OnReplayComplete(ctx), domain.ErrQueueClosed)
}
