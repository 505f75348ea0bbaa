// Package market keeps the latest quote and aggregates per symbol.
package market

import "github.com/alanyoungcy/studiobot/internal/domain"

// State holds last-write-wins market data keyed by symbol. It is owned by
// the engine loop and is not safe for concurrent use.
type State struct {
	quotes     map[string]domain.Quote
	secondBars map[string]domain.Bar
	minuteBars map[string]domain.Bar
}

// New returns an empty State.
func New() *State {
	return &State{
		quotes:     make(map[string]domain.Quote),
		secondBars: make(map[string]domain.Bar),
		minuteBars: make(map[string]domain.Bar),
	}
}

// ApplyQuote stores q as the latest quote for its symbol.
func (s *State) ApplyQuote(q domain.Quote) {
	s.quotes[q.Symbol] = q
}

// ApplySecondBar stores b as the latest second aggregate for its symbol.
func (s *State) ApplySecondBar(b domain.Bar) {
	s.secondBars[b.Symbol] = b
}

// ApplyMinuteBar stores b as the latest minute aggregate for its symbol.
func (s *State) ApplyMinuteBar(b domain.Bar) {
	s.minuteBars[b.Symbol] = b
}

// Quote returns the latest quote for symbol, if one has arrived.
func (s *State) Quote(symbol string) (domain.Quote, bool) {
	q, ok := s.quotes[symbol]
	return q, ok
}

// SecondBar returns the latest second aggregate for symbol.
func (s *State) SecondBar(symbol string) (domain.Bar, bool) {
	b, ok := s.secondBars[symbol]
	return b, ok
}

// MinuteBar returns the latest minute aggregate for symbol.
func (s *State) MinuteBar(symbol string) (domain.Bar, bool) {
	b, ok := s.minuteBars[symbol]
	return b, ok
}
