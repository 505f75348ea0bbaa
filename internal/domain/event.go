package domain

import "time"

// EventKind identifies what an Event carries.
type EventKind int

const (
	EventQuote EventKind = iota + 1
	EventSecondBar
	EventMinuteBar
	EventOrderUpdate
	EventTradeNotice
	EventPositionUpdate
	EventReplayComplete
	EventTimer
)

var eventKindNames = map[EventKind]string{
	EventQuote:          "quote",
	EventSecondBar:      "second-bar",
	EventMinuteBar:      "minute-bar",
	EventOrderUpdate:    "order-update",
	EventTradeNotice:    "trade-notice",
	EventPositionUpdate: "position-update",
	EventReplayComplete: "replay-complete",
	EventTimer:          "timer",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one item on the engine intake. Exactly one payload field is set,
// matching Kind; replay-complete and timer events carry none.
type Event struct {
	Kind     EventKind
	Quote    *Quote
	Bar      *Bar
	Order    *Order
	Trade    *Trade
	Position *Position
	At       time.Time
}

func QuoteEvent(q Quote) Event       { return Event{Kind: EventQuote, Quote: &q, At: time.Now()} }
func SecondBarEvent(b Bar) Event     { return Event{Kind: EventSecondBar, Bar: &b, At: time.Now()} }
func MinuteBarEvent(b Bar) Event     { return Event{Kind: EventMinuteBar, Bar: &b, At: time.Now()} }
func OrderEvent(o Order) Event       { return Event{Kind: EventOrderUpdate, Order: &o, At: time.Now()} }
func TradeEvent(t Trade) Event       { return Event{Kind: EventTradeNotice, Trade: &t, At: time.Now()} }
func PositionEvent(p Position) Event { return Event{Kind: EventPositionUpdate, Position: &p, At: time.Now()} }
func ReplayCompleteEvent() Event     { return Event{Kind: EventReplayComplete, At: time.Now()} }
func TimerEvent(at time.Time) Event  { return Event{Kind: EventTimer, At: at} }
