// Package feed adapts platform callbacks into engine intake events.
package feed

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Publisher is the engine intake.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// MarketFeed forwards quotes and bars, optionally mirroring quotes of the
// watched symbols into a PriceCache.
type MarketFeed struct {
	out    Publisher
	prices domain.PriceCache
	logger *slog.Logger
}

// NewMarketFeed creates a MarketFeed. prices may be nil.
func NewMarketFeed(out Publisher, prices domain.PriceCache, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		out:    out,
		prices: prices,
		logger: logger.With(slog.String("component", "market_feed")),
	}
}

func (f *MarketFeed) OnQuote(ctx context.Context, q domain.Quote) error {
	if f.prices != nil {
		if err := f.prices.SetQuote(ctx, q); err != nil {
			f.logger.DebugContext(ctx, "price cache write failed",
				slog.String("symbol", q.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return f.out.Publish(ctx, domain.QuoteEvent(q))
}

func (f *MarketFeed) OnSecondBar(ctx context.Context, b domain.Bar) error {
	return f.out.Publish(ctx, domain.SecondBarEvent(b))
}

func (f *MarketFeed) OnMinuteBar(ctx context.Context, b domain.Bar) error {
	return f.out.Publish(ctx, domain.MinuteBarEvent(b))
}

// ActivityFeed forwards account activity.
type ActivityFeed struct {
	out Publisher
}

// NewActivityFeed creates an ActivityFeed.
func NewActivityFeed(out Publisher) *ActivityFeed {
	return &ActivityFeed{out: out}
}

func (f *ActivityFeed) OnOrderUpdate(ctx context.Context, o domain.Order) error {
	return f.out.Publish(ctx, domain.OrderEvent(o))
}

func (f *ActivityFeed) OnTradeNotice(ctx context.Context, t domain.Trade) error {
	return f.out.Publish(ctx, domain.TradeEvent(t))
}

func (f *ActivityFeed) OnPositionUpdate(ctx context.Context, p domain.Position) error {
	return f.out.Publish(ctx, domain.PositionEvent(p))
}

func (f *ActivityFeed) OnReplayComplete(ctx context.Context) error {
	return f.out.Publish(ctx, domain.ReplayCompleteEvent())
}
