package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// TakerName is the registry name of the signal-triggered policy.
const TakerName = "taker"

// TakerConfig holds the taking parameters.
type TakerConfig struct {
	Symbol        string
	TriggerSymbol string
	MinEdge       float64
	MinBars       int
	EMAWindow     int
	OrderSize     int64
}

// Taker follows a trigger symbol's trend. Its theo is the traded symbol's
// mid scaled by the trigger's EMA over its mid; when theo clears the far
// side of the book by more than MinEdge it crosses with an IOC order.
type Taker struct {
	cfg     TakerConfig
	ema     *EMA
	bars    int
	theo    float64
	hasTheo bool
}

// NewTaker validates cfg and returns a Taker.
func NewTaker(cfg TakerConfig, limits domain.RiskLimits) (*Taker, error) {
	if cfg.Symbol == "" || cfg.TriggerSymbol == "" {
		return nil, fmt.Errorf("taker: %w: symbol and trigger_symbol are required", domain.ErrInvalidConfig)
	}
	if cfg.MinBars < 1 || cfg.EMAWindow < 1 {
		return nil, fmt.Errorf("taker: %w: min_bars and ema_window must be >= 1", domain.ErrInvalidConfig)
	}
	if cfg.OrderSize < 1 {
		return nil, fmt.Errorf("taker: %w: order_size must be >= 1", domain.ErrInvalidConfig)
	}
	if err := validateEdge(cfg.MinEdge, limits.MinTick); err != nil {
		return nil, fmt.Errorf("taker: %w", err)
	}
	return &Taker{cfg: cfg, ema: NewEMA(cfg.EMAWindow)}, nil
}

func (t *Taker) Name() string { return TakerName }

func (t *Taker) Symbols() []string { return []string{t.cfg.Symbol, t.cfg.TriggerSymbol} }

// Theo returns the last computed fair value.
func (t *Taker) Theo() (float64, bool) { return t.theo, t.hasTheo }

// Bars returns how many trigger bars have been folded into the EMA.
func (t *Taker) Bars() int { return t.bars }

// OnQuote evaluates on every quote of the traded symbol.
func (t *Taker) OnQuote(q domain.Quote) Trigger {
	if q.Symbol == t.cfg.Symbol {
		return EvaluateNow
	}
	return Skip
}

// OnSecondBar feeds trigger closes into the EMA.
func (t *Taker) OnSecondBar(b domain.Bar) Trigger {
	switch b.Symbol {
	case t.cfg.TriggerSymbol:
		t.ema.Update(b.Close)
		t.bars++
		return EvaluateNow
	case t.cfg.Symbol:
		return EvaluateNow
	default:
		return Skip
	}
}

func (t *Taker) OnMinuteBar(domain.Bar) Trigger { return Skip }

// Decide sends at most one IOC order and nothing while any order is still
// working.
func (t *Taker) Decide(in Input) []domain.Action {
	if t.bars < t.cfg.MinBars || !t.ema.Ready() {
		return nil
	}
	q, ok := in.Market.Quote(t.cfg.Symbol)
	if !ok || !q.Valid() {
		return nil
	}
	tq, ok := in.Market.Quote(t.cfg.TriggerSymbol)
	if !ok || !tq.Valid() {
		return nil
	}
	if in.Ledger.Working() > 0 {
		return nil
	}

	t.theo = t.ema.Value() * q.Mid() / tq.Mid()
	t.hasTheo = true

	switch {
	case t.theo > q.AskPrice:
		edge := t.theo - q.AskPrice
		if edge > t.cfg.MinEdge {
			return []domain.Action{domain.Submit(domain.OrderSideBuy, t.cfg.OrderSize, marketPrice(q.AskPrice), domain.TimeInForceIOC,
				fmt.Sprintf("theo %.3f over ask by %.2f", t.theo, edge))}
		}
	case t.theo < q.BidPrice:
		edge := q.BidPrice - t.theo
		if edge > t.cfg.MinEdge {
			return []domain.Action{domain.Submit(domain.OrderSideSell, t.cfg.OrderSize, marketPrice(q.BidPrice), domain.TimeInForceIOC,
				fmt.Sprintf("theo %.3f under bid by %.2f", t.theo, edge))}
		}
	}
	return nil
}

// marketPrice keeps the touch price as quoted; snapping it to the tick could
// move a crossing order off the book.
func marketPrice(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Round(priceScale)
}
