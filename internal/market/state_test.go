package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

func TestQuoteAbsentUntilFirstUpdate(t *testing.T) {
	s := New()
	_, ok := s.Quote("AAPL")
	assert.False(t, ok)
	_, ok = s.SecondBar("AAPL")
	assert.False(t, ok)
	_, ok = s.MinuteBar("AAPL")
	assert.False(t, ok)
}

func TestLastWriteWinsPerSymbol(t *testing.T) {
	s := New()
	s.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 99.9, AskPrice: 100.1})
	s.ApplyQuote(domain.Quote{Symbol: "MSFT", BidPrice: 400, AskPrice: 401})
	s.ApplyQuote(domain.Quote{Symbol: "AAPL", BidPrice: 100.0, AskPrice: 100.2})

	q, ok := s.Quote("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 100.1, q.Mid(), 1e-9)

	q, ok = s.Quote("MSFT")
	require.True(t, ok)
	assert.Equal(t, 400.0, q.BidPrice)

	s.ApplySecondBar(domain.Bar{Symbol: "SPY", Close: 500})
	s.ApplySecondBar(domain.Bar{Symbol: "SPY", Close: 501})
	s.ApplyMinuteBar(domain.Bar{Symbol: "SPY", Close: 499})

	b, ok := s.SecondBar("SPY")
	require.True(t, ok)
	assert.Equal(t, 501.0, b.Close)
	b, ok = s.MinuteBar("SPY")
	require.True(t, ok)
	assert.Equal(t, 499.0, b.Close)
}
