package engine

import (
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/strategy"
)

// Status is an immutable snapshot of the engine published after every
// event. Readers on other goroutines get it through Engine.Status.
type Status struct {
	Symbol      string
	Policy      string
	Ready       bool
	Halted      bool
	Dirty       bool
	Position    int64
	Rejects     int
	InFlight    int
	Unconfirmed int
	Buys        []domain.Order
	Sells       []domain.Order
	Cancelling  []domain.Order
	Theo        float64
	HasTheo     bool
	Quote       *domain.Quote
	Evals       int64
	LastEval    time.Time
	Last        []strategy.Result
	Queued      int
	UpdatedAt   time.Time
}

// publishStatus builds a fresh Status from loop-owned state.
func (e *Engine) publishStatus() {
	snap := e.ledger.Snapshot()
	st := &Status{
		Symbol:      e.cfg.Symbol,
		Policy:      e.policy.Name(),
		Ready:       e.ready,
		Halted:      snap.Halted,
		Dirty:       e.dirty,
		Position:    snap.Position,
		Rejects:     snap.Rejects,
		InFlight:    snap.InFlight,
		Unconfirmed: len(snap.Unconfirmed),
		Buys:        snap.Buys,
		Sells:       snap.Sells,
		Cancelling:  snap.Cancelling,
		Evals:       e.evals,
		LastEval:    e.lastEval,
		Last:        e.last,
		Queued:      e.intake.Len(),
		UpdatedAt:   e.now(),
	}
	if t, ok := e.policy.(strategy.Theoretical); ok {
		st.Theo, st.HasTheo = t.Theo()
	}
	if q, ok := e.market.Quote(e.cfg.Symbol); ok {
		st.Quote = &q
	}
	e.status.Store(st)
}
