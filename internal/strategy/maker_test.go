package strategy

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/ledger"
	"github.com/alanyoungcy/studiobot/internal/market"
)

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPosition: 100,
		MinSize:     1,
		MaxSize:     10,
		MinTick:     decimal.RequireFromString("0.05"),
		MaxRejects:  4,
	}
}

func newTestMaker(t *testing.T, levels int) *Maker {
	t.Helper()
	m, err := NewMaker(MakerConfig{Symbol: "AAPL", NumLevels: levels, MinEdge: 0.50, TheoThreshold: 0.01}, testLimits(), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	return m
}

func prices(actions []domain.Action, side domain.OrderSide) []string {
	var out []string
	for _, a := range actions {
		if a.Kind == domain.ActionSubmit && a.Side == side {
			out = append(out, FormatPrice(a.Price))
		}
	}
	return out
}

func TestMakerLaddersAroundTheo(t *testing.T) {
	m := newTestMaker(t, 2)
	require.Equal(t, MarkDirty, m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99, AskPrice: 101}))

	actions := m.Decide(Input{Market: market.New(), Ledger: ledger.New("AAPL", 4).Snapshot()})

	assert.Equal(t, []string{"99.50", "99.45"}, prices(actions, domain.OrderSideBuy))
	assert.Equal(t, []string{"100.50", "100.55"}, prices(actions, domain.OrderSideSell))
	for _, a := range actions {
		assert.Equal(t, domain.TimeInForceDay, a.TimeInForce)
		assert.GreaterOrEqual(t, a.Quantity, int64(1))
		assert.LessOrEqual(t, a.Quantity, int64(10))
	}
}

func TestMakerCancelsLowEdgeOrders(t *testing.T) {
	m := newTestMaker(t, 2)
	m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99, AskPrice: 101})

	l := ledger.New("AAPL", 4)
	for _, o := range []domain.Order{
		{ID: "stale", Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 3, Price: decimal.RequireFromString("99.90")},
		{ID: "good", Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 3, Price: decimal.RequireFromString("99.40")},
		{ID: "crossed", Symbol: "AAPL", Side: domain.OrderSideSell, Quantity: 3, Price: decimal.RequireFromString("99.80")},
	} {
		l.TrackSubmitted(o)
		o.State = domain.OrderStateOpen
		_, err := l.ApplyOrderUpdate(o)
		require.NoError(t, err)
	}

	actions := m.Decide(Input{Market: market.New(), Ledger: l.Snapshot()})

	var cancelled []string
	for _, a := range actions {
		if a.Kind == domain.ActionCancel {
			cancelled = append(cancelled, a.OrderID)
		}
	}
	assert.ElementsMatch(t, []string{"stale", "crossed"}, cancelled)

	// One buy survives at 99.40, so one more level goes in a tick below it.
	assert.Equal(t, []string{"99.35"}, prices(actions, domain.OrderSideBuy))
	assert.Equal(t, []string{"100.50", "100.55"}, prices(actions, domain.OrderSideSell))
}

func TestMakerWalksOutwardFromWorstSell(t *testing.T) {
	m := newTestMaker(t, 3)
	m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99, AskPrice: 101})

	l := ledger.New("AAPL", 4)
	l.TrackSubmitted(domain.Order{ID: "s1", Symbol: "AAPL", Side: domain.OrderSideSell, Quantity: 2, Price: decimal.RequireFromString("100.60")})

	actions := m.Decide(Input{Market: market.New(), Ledger: l.Snapshot()})
	assert.Equal(t, []string{"100.65", "100.70"}, prices(actions, domain.OrderSideSell))
	assert.Len(t, prices(actions, domain.OrderSideBuy), 3)
}

func TestMakerWithoutTheoCancelsAll(t *testing.T) {
	m := newTestMaker(t, 2)
	actions := m.Decide(Input{Market: market.New(), Ledger: ledger.New("AAPL", 4).Snapshot()})
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionCancelAll, actions[0].Kind)

	m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99, AskPrice: 101})
	assert.Equal(t, MarkDirty, m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 0, AskPrice: 101}))
	_, ok := m.Theo()
	assert.False(t, ok)
}

func TestMakerIgnoresSmallTheoMoves(t *testing.T) {
	m := newTestMaker(t, 2)
	assert.Equal(t, MarkDirty, m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.00, AskPrice: 101.00}))
	assert.Equal(t, Skip, m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.00, AskPrice: 101.01}))
	assert.Equal(t, MarkDirty, m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.02, AskPrice: 101.02}))
	assert.Equal(t, Skip, m.OnQuote(domain.Quote{Symbol: "MSFT", BidPrice: 1, AskPrice: 2}))
}

func TestMakerStopsBuyLevelsBelowOneTick(t *testing.T) {
	m, err := NewMaker(MakerConfig{Symbol: "PENNY", NumLevels: 5, MinEdge: 0.10}, testLimits(), rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	m.OnQuote(domain.Quote{Symbol: "PENNY", BidPrice: 0.20, AskPrice: 0.30})

	actions := m.Decide(Input{Market: market.New(), Ledger: ledger.New("PENNY", 4).Snapshot()})
	assert.Equal(t, []string{"0.15", "0.10", "0.05"}, prices(actions, domain.OrderSideBuy))
	assert.Len(t, prices(actions, domain.OrderSideSell), 5)
}

func TestNewMakerValidatesEdge(t *testing.T) {
	_, err := NewMaker(MakerConfig{Symbol: "AAPL", NumLevels: 1, MinEdge: 0.01}, testLimits(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewMaker(MakerConfig{Symbol: "AAPL", NumLevels: 1, MinEdge: -1}, testLimits(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewMaker(MakerConfig{Symbol: "AAPL", NumLevels: 0, MinEdge: 1}, testLimits(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestMakerLevelsKeepEdgeOffTick(t *testing.T) {
	m := newTestMaker(t, 1)
	require.Equal(t, MarkDirty, m.OnQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.53, AskPrice: 100.53}))

	l := ledger.New("AAPL", 4)
	first := m.Decide(Input{Market: market.New(), Ledger: l.Snapshot()})
	assert.Equal(t, []string{"99.50"}, prices(first, domain.OrderSideBuy))
	assert.Equal(t, []string{"100.55"}, prices(first, domain.OrderSideSell))

	for i, a := range first {
		o := domain.Order{ID: fmt.Sprintf("o%d", i), Symbol: "AAPL", Side: a.Side, Quantity: a.Quantity, Price: a.Price}
		l.TrackSubmitted(o)
		o.State = domain.OrderStateOpen
		_, err := l.ApplyOrderUpdate(o)
		require.NoError(t, err)
	}

	assert.Empty(t, m.Decide(Input{Market: market.New(), Ledger: l.Snapshot()}))
}

func TestTickRounding(t *testing.T) {
	tick := decimal.RequireFromString("0.05")
	tests := []struct {
		in, floor, ceil string
	}{
		{"99.50", "99.50", "99.50"},
		{"99.53", "99.50", "99.55"},
		{"99.47", "99.45", "99.50"},
		{"100.551", "100.55", "100.60"},
		{"0.024", "0.00", "0.05"},
	}
	for _, tt := range tests {
		p := decimal.RequireFromString(tt.in)
		assert.Equal(t, tt.floor, FormatPrice(FloorTick(p, tick)), tt.in)
		assert.Equal(t, tt.ceil, FormatPrice(CeilTick(p, tick)), tt.in)
	}
	assert.Equal(t, "12.34", FormatPrice(FloorTick(decimal.RequireFromString("12.345"), decimal.Zero)))
	assert.Equal(t, "12.35", FormatPrice(CeilTick(decimal.RequireFromString("12.341"), decimal.Zero)))
}
