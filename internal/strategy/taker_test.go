package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/ledger"
	"github.com/alanyoungcy/studiobot/internal/market"
)

func newTestTaker(t *testing.T) *Taker {
	t.Helper()
	tk, err := NewTaker(TakerConfig{
		Symbol:        "AAPL",
		TriggerSymbol: "SPY",
		MinEdge:       0.10,
		MinBars:       3,
		EMAWindow:     3,
		OrderSize:     5,
	}, testLimits())
	require.NoError(t, err)
	return tk
}

func feedTrigger(tk *Taker, closes ...float64) {
	for _, c := range closes {
		tk.OnSecondBar(domain.Bar{Symbol: "SPY", Close: c})
	}
}

func TestTakerWaitsForMinBars(t *testing.T) {
	tk := newTestTaker(t)
	mkt := market.New()
	mkt.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.9, AskPrice: 100.1})
	mkt.ApplyQuote(domain.Quote{Symbol: "SPY", BidPrice: 399, AskPrice: 401})

	feedTrigger(tk, 420, 420)
	assert.Empty(t, tk.Decide(Input{Market: mkt, Ledger: ledger.New("AAPL", 4).Snapshot()}))
	_, ok := tk.Theo()
	assert.False(t, ok)
}

func TestTakerBuysWhenTheoClearsAsk(t *testing.T) {
	tk := newTestTaker(t)
	mkt := market.New()
	mkt.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.9, AskPrice: 100.1})
	mkt.ApplyQuote(domain.Quote{Symbol: "SPY", BidPrice: 399, AskPrice: 401})

	// Trigger trending 1% above its mid: theo = 404 * 100 / 400 = 101.
	feedTrigger(tk, 404, 404, 404)

	actions := tk.Decide(Input{Market: mkt, Ledger: ledger.New("AAPL", 4).Snapshot()})
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, domain.ActionSubmit, a.Kind)
	assert.Equal(t, domain.OrderSideBuy, a.Side)
	assert.Equal(t, domain.TimeInForceIOC, a.TimeInForce)
	assert.Equal(t, int64(5), a.Quantity)
	assert.Equal(t, "100.10", FormatPrice(a.Price))

	theo, ok := tk.Theo()
	require.True(t, ok)
	assert.InDelta(t, 101.0, theo, 1e-9)
}

func TestTakerSellsWhenTheoUnderBid(t *testing.T) {
	tk := newTestTaker(t)
	mkt := market.New()
	mkt.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.9, AskPrice: 100.1})
	mkt.ApplyQuote(domain.Quote{Symbol: "SPY", BidPrice: 399, AskPrice: 401})

	feedTrigger(tk, 396, 396, 396)

	actions := tk.Decide(Input{Market: mkt, Ledger: ledger.New("AAPL", 4).Snapshot()})
	require.Len(t, actions, 1)
	assert.Equal(t, domain.OrderSideSell, actions[0].Side)
	assert.Equal(t, "99.90", FormatPrice(actions[0].Price))
}

func TestTakerHoldsInsideEdge(t *testing.T) {
	tk := newTestTaker(t)
	mkt := market.New()
	mkt.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.9, AskPrice: 100.1})
	mkt.ApplyQuote(domain.Quote{Symbol: "SPY", BidPrice: 399, AskPrice: 401})

	feedTrigger(tk, 400.4, 400.4, 400.4)
	assert.Empty(t, tk.Decide(Input{Market: mkt, Ledger: ledger.New("AAPL", 4).Snapshot()}))
}

func TestTakerSkipsWhileOrderWorking(t *testing.T) {
	tk := newTestTaker(t)
	mkt := market.New()
	mkt.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.9, AskPrice: 100.1})
	mkt.ApplyQuote(domain.Quote{Symbol: "SPY", BidPrice: 399, AskPrice: 401})
	feedTrigger(tk, 404, 404, 404)

	l := ledger.New("AAPL", 4)
	l.TrackSubmitted(domain.Order{ID: "ioc-1", Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 5, Price: decimal.RequireFromString("100.10")})

	assert.Empty(t, tk.Decide(Input{Market: mkt, Ledger: l.Snapshot()}))
}

func TestTakerTriggers(t *testing.T) {
	tk := newTestTaker(t)
	assert.Equal(t, EvaluateNow, tk.OnQuote(domain.Quote{Symbol: "AAPL"}))
	assert.Equal(t, Skip, tk.OnQuote(domain.Quote{Symbol: "SPY"}))
	assert.Equal(t, EvaluateNow, tk.OnSecondBar(domain.Bar{Symbol: "SPY", Close: 1}))
	assert.Equal(t, EvaluateNow, tk.OnSecondBar(domain.Bar{Symbol: "AAPL", Close: 1}))
	assert.Equal(t, Skip, tk.OnSecondBar(domain.Bar{Symbol: "QQQ", Close: 1}))
	assert.Equal(t, Skip, tk.OnMinuteBar(domain.Bar{Symbol: "SPY"}))
	assert.Equal(t, 1, tk.Bars())
	assert.ElementsMatch(t, []string{"AAPL", "SPY"}, tk.Symbols())
}

func TestNewTakerValidation(t *testing.T) {
	base := TakerConfig{Symbol: "AAPL", TriggerSymbol: "SPY", MinEdge: 0.1, MinBars: 1, EMAWindow: 1, OrderSize: 1}

	bad := []func(*TakerConfig){
		func(c *TakerConfig) { c.TriggerSymbol = "" },
		func(c *TakerConfig) { c.MinBars = 0 },
		func(c *TakerConfig) { c.EMAWindow = 0 },
		func(c *TakerConfig) { c.OrderSize = 0 },
		func(c *TakerConfig) { c.MinEdge = 0.01 },
	}
	for i, mutate := range bad {
		cfg := base
		mutate(&cfg)
		_, err := NewTaker(cfg, testLimits())
		assert.ErrorIs(t, err, domain.ErrInvalidConfig, "case %d", i)
	}

	_, err := NewTaker(base, testLimits())
	assert.NoError(t, err)
}

func TestEMA(t *testing.T) {
	e := NewEMA(3)
	assert.False(t, e.Ready())

	e.Update(10)
	assert.Equal(t, 10.0, e.Value())
	e.Update(20)
	assert.InDelta(t, 15.0, e.Value(), 1e-9)
	assert.False(t, e.Ready())
	e.Update(20)
	assert.InDelta(t, 17.5, e.Value(), 1e-9)
	assert.True(t, e.Ready())
	assert.Equal(t, 3, e.Samples())
}

func TestRegistryBuildsPolicies(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{MakerName, TakerName}, r.List())

	p, err := r.Build(MakerName, Params{
		Limits: testLimits(),
		Maker:  MakerConfig{Symbol: "AAPL", NumLevels: 2, MinEdge: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, MakerName, p.Name())
	_, ok := p.(Theoretical)
	assert.True(t, ok)

	_, err = r.Build(TakerName, Params{Limits: testLimits()})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = r.Build("scalper", Params{})
	assert.Error(t, err)
}
