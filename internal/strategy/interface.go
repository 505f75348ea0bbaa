package strategy

import (
	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/ledger"
)

// Trigger tells the engine what a market event means for evaluation.
type Trigger int

const (
	// Skip leaves the dirty flag alone.
	Skip Trigger = iota
	// MarkDirty defers evaluation to the next timer tick.
	MarkDirty
	// EvaluateNow asks for an evaluation pass right away.
	EvaluateNow
)

// MarketView is the read-only market data a policy may consult.
type MarketView interface {
	Quote(symbol string) (domain.Quote, bool)
	SecondBar(symbol string) (domain.Bar, bool)
	MinuteBar(symbol string) (domain.Bar, bool)
}

// Input is everything a policy sees during one evaluation pass.
type Input struct {
	Market MarketView
	Ledger ledger.Snapshot
	// Last holds the results of the previous pass, in action order.
	Last []Result
}

// Policy decides which orders the engine should be working. Policies are
// driven from the engine loop only and need no locking.
type Policy interface {
	Name() string
	// Symbols lists every symbol the policy needs market data for.
	Symbols() []string
	OnQuote(q domain.Quote) Trigger
	OnSecondBar(b domain.Bar) Trigger
	OnMinuteBar(b domain.Bar) Trigger
	Decide(in Input) []domain.Action
}

// Theoretical is implemented by policies that expose their fair value.
type Theoretical interface {
	Theo() (float64, bool)
}
