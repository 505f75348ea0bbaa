// Package ledger tracks the orders the engine submitted and the net position
// for its one symbol. It is owned by the engine loop and is not safe for
// concurrent use.
package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Outcome describes what an order update did to the ledger.
type Outcome int

const (
	// Ignored updates belong to another symbol or to an order the engine did
	// not submit, or arrive after the order already finished.
	Ignored Outcome = iota
	Opened
	Updated
	Closed
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Opened:
		return "opened"
	case Updated:
		return "updated"
	case Closed:
		return "closed"
	case Rejected:
		return "rejected"
	default:
		return "ignored"
	}
}

// Changed reports whether the update mutated the ledger.
func (o Outcome) Changed() bool { return o != Ignored }

// finishedCap bounds how many terminal order ids are remembered for
// ignoring late or replayed updates.
const finishedCap = 4096

// Ledger is the engine's view of its working orders and position.
type Ledger struct {
	symbol     string
	maxRejects int

	// submitted holds ids of orders that have not finished yet.
	submitted  map[string]struct{}
	finished   map[string]struct{}
	finishedQ  []string
	inflight   map[string]domain.Order
	open       map[string]domain.Order
	cancelling map[string]struct{}

	// unconfirmed holds submits whose outcome is unknown, by reference id.
	unconfirmed map[string]domain.Order

	position int64
	rejects  int
	halted   bool
}

// New creates an empty Ledger for symbol that halts after maxRejects
// consecutive rejections.
func New(symbol string, maxRejects int) *Ledger {
	return &Ledger{
		symbol:     symbol,
		maxRejects: maxRejects,
		submitted:  make(map[string]struct{}),
		finished:   make(map[string]struct{}),
		inflight:   make(map[string]domain.Order),
		open:       make(map[string]domain.Order),
		cancelling: make(map[string]struct{}),

		unconfirmed: make(map[string]domain.Order),
	}
}

// Symbol returns the traded symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// TrackSubmitted records an order the gateway accepted but the account feed
// has not confirmed yet.
func (l *Ledger) TrackSubmitted(o domain.Order) {
	if o.ID == "" {
		return
	}
	if _, done := l.finished[o.ID]; done {
		return
	}
	l.submitted[o.ID] = struct{}{}
	if _, ok := l.open[o.ID]; ok {
		return
	}
	o.State = domain.OrderStatePendingSubmit
	l.inflight[o.ID] = o
}

// TrackUnconfirmed records a submit that may or may not have reached the
// venue, such as one whose response timed out. It reserves capacity like an
// in-flight order until an update with the same reference id adopts it or
// ExpireUnconfirmed drops it. o.UpdatedAt is the submit time.
func (l *Ledger) TrackUnconfirmed(o domain.Order) {
	if o.ReferenceID == "" {
		return
	}
	o.ID = ""
	o.State = domain.OrderStatePendingSubmit
	l.unconfirmed[o.ReferenceID] = o
}

// ExpireUnconfirmed forgets unconfirmed submits made before cutoff and
// returns how many were dropped.
func (l *Ledger) ExpireUnconfirmed(cutoff time.Time) int {
	n := 0
	for ref, o := range l.unconfirmed {
		if o.UpdatedAt.Before(cutoff) {
			delete(l.unconfirmed, ref)
			n++
		}
	}
	return n
}

// adopt binds an update for an unknown id to the unconfirmed submit with the
// same reference id.
func (l *Ledger) adopt(o domain.Order) bool {
	if o.ReferenceID == "" {
		return false
	}
	pending, ok := l.unconfirmed[o.ReferenceID]
	if !ok {
		return false
	}
	delete(l.unconfirmed, o.ReferenceID)
	pending.ID = o.ID
	l.submitted[o.ID] = struct{}{}
	l.inflight[o.ID] = pending
	return true
}

// ApplyOrderUpdate folds an authoritative order notification into the
// ledger. It returns a *domain.HaltError exactly once, on the rejection that
// reaches the configured threshold.
func (l *Ledger) ApplyOrderUpdate(o domain.Order) (Outcome, error) {
	if o.Symbol != l.symbol {
		return Ignored, nil
	}
	if _, done := l.finished[o.ID]; done {
		return Ignored, nil
	}
	adopted := false
	if _, ok := l.submitted[o.ID]; !ok {
		if adopted = l.adopt(o); !adopted {
			return Ignored, nil
		}
	}

	switch {
	case o.State == domain.OrderStateOpen:
		delete(l.inflight, o.ID)
		_, existed := l.open[o.ID]
		l.open[o.ID] = o
		l.rejects = 0
		if existed {
			return Updated, nil
		}
		return Opened, nil

	case o.State.Terminal():
		l.finish(o.ID)
		if o.State != domain.OrderStateRejected {
			if o.State == domain.OrderStateFilled {
				l.rejects = 0
			}
			return Closed, nil
		}
		return Rejected, l.countReject()

	default:
		// Still working its way through the venue; keep it reserved.
		if in, ok := l.inflight[o.ID]; ok {
			in.Text = o.Text
			in.UpdatedAt = o.UpdatedAt
			l.inflight[o.ID] = in
		}
		if adopted {
			return Updated, nil
		}
		return Ignored, nil
	}
}

// RecordReject counts a rejection that never reached the account feed, such
// as a submit the gateway refused outright.
func (l *Ledger) RecordReject() error {
	return l.countReject()
}

func (l *Ledger) countReject() error {
	l.rejects++
	if l.halted || l.rejects < l.maxRejects {
		return nil
	}
	l.halted = true
	return &domain.HaltError{Symbol: l.symbol, Rejects: l.rejects}
}

func (l *Ledger) finish(id string) {
	delete(l.inflight, id)
	delete(l.open, id)
	delete(l.cancelling, id)
	delete(l.submitted, id)
	if _, ok := l.finished[id]; ok {
		return
	}
	l.finished[id] = struct{}{}
	l.finishedQ = append(l.finishedQ, id)
	if len(l.finishedQ) > finishedCap {
		delete(l.finished, l.finishedQ[0])
		l.finishedQ = l.finishedQ[1:]
	}
}

// ApplyPosition replaces the authoritative position. It reports false for
// other symbols.
func (l *Ledger) ApplyPosition(p domain.Position) bool {
	if p.Symbol != l.symbol {
		return false
	}
	l.position = p.Quantity
	return true
}

// MarkCancelRequested notes that a cancel was sent for id. The order stays
// working until the feed confirms it.
func (l *Ledger) MarkCancelRequested(id string) {
	if _, ok := l.open[id]; ok {
		l.cancelling[id] = struct{}{}
		return
	}
	if _, ok := l.inflight[id]; ok {
		l.cancelling[id] = struct{}{}
	}
}

// MarkAllCancelRequested is MarkCancelRequested for every working order.
func (l *Ledger) MarkAllCancelRequested() {
	for id := range l.open {
		l.cancelling[id] = struct{}{}
	}
	for id := range l.inflight {
		l.cancelling[id] = struct{}{}
	}
}

// Position returns the last authoritative position.
func (l *Ledger) Position() int64 { return l.position }

// Rejects returns the current consecutive reject count.
func (l *Ledger) Rejects() int { return l.rejects }

// Halted reports whether the reject threshold has been reached.
func (l *Ledger) Halted() bool { return l.halted }

// ReservedPosition is the position a new order on side must be checked
// against: the authoritative position plus every unconfirmed order on that
// side, so in-flight quantity is never counted as free capacity.
func (l *Ledger) ReservedPosition(side domain.OrderSide) int64 {
	pos := l.position
	for _, o := range l.inflight {
		if o.Side == side {
			pos += side.Sign() * o.Remaining()
		}
	}
	for _, o := range l.unconfirmed {
		if o.Side == side {
			pos += side.Sign() * o.Remaining()
		}
	}
	return pos
}

// Snapshot returns an immutable copy of the working orders.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Symbol:   l.symbol,
		Position: l.position,
		Rejects:  l.rejects,
		Halted:   l.halted,
	}
	collect := func(o domain.Order) {
		if _, ok := l.cancelling[o.ID]; ok {
			s.Cancelling = append(s.Cancelling, o)
			return
		}
		if o.Side == domain.OrderSideBuy {
			s.Buys = append(s.Buys, o)
		} else {
			s.Sells = append(s.Sells, o)
		}
	}
	for _, o := range l.open {
		collect(o)
	}
	for _, o := range l.inflight {
		s.InFlight++
		collect(o)
	}
	for _, o := range l.unconfirmed {
		s.Unconfirmed = append(s.Unconfirmed, o)
	}

	// Best first: highest bid, lowest offer. Ties break on id so the order
	// is stable across snapshots.
	slices.SortFunc(s.Buys, func(a, b domain.Order) int {
		if c := b.Price.Cmp(a.Price); c != 0 {
			return c
		}
		return compareID(a, b)
	})
	slices.SortFunc(s.Sells, func(a, b domain.Order) int {
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c
		}
		return compareID(a, b)
	})
	slices.SortFunc(s.Cancelling, compareID)
	slices.SortFunc(s.Unconfirmed, func(a, b domain.Order) int {
		return strings.Compare(a.ReferenceID, b.ReferenceID)
	})
	return s
}

func compareID(a, b domain.Order) int {
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Snapshot is a point-in-time view of the ledger. Buys and Sells hold every
// working order (confirmed or in flight) that has no cancel pending.
type Snapshot struct {
	Symbol     string
	Position   int64
	Rejects    int
	Halted     bool
	Buys       []domain.Order
	Sells      []domain.Order
	Cancelling []domain.Order
	InFlight   int

	// Unconfirmed submits have no order id yet and cannot be cancelled.
	Unconfirmed []domain.Order
}

// Working returns the number of orders that may still trade.
func (s Snapshot) Working() int {
	return len(s.Buys) + len(s.Sells) + len(s.Cancelling) + len(s.Unconfirmed)
}

// UnconfirmedOn counts unconfirmed submits on side.
func (s Snapshot) UnconfirmedOn(side domain.OrderSide) int {
	n := 0
	for _, o := range s.Unconfirmed {
		if o.Side == side {
			n++
		}
	}
	return n
}

// Side returns the ordered working orders for side.
func (s Snapshot) Side(side domain.OrderSide) []domain.Order {
	if side == domain.OrderSideBuy {
		return s.Buys
	}
	return s.Sells
}

// Worst returns the resting order furthest from the touch on side.
func (s Snapshot) Worst(side domain.OrderSide) (domain.Order, bool) {
	orders := s.Side(side)
	if len(orders) == 0 {
		return domain.Order{}, false
	}
	return orders[len(orders)-1], true
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s pos=%d buys=%d sells=%d cancelling=%d inflight=%d unconfirmed=%d rejects=%d",
		s.Symbol, s.Position, len(s.Buys), len(s.Sells), len(s.Cancelling), s.InFlight, len(s.Unconfirmed), s.Rejects)
}
