package polygon

import (
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Event codes on the stocks cluster.
const (
	EvQuote     = "Q"
	EvSecondAgg = "A"
	EvMinuteAgg = "AM"
	EvStatus    = "status"
)

// Command is an outbound control message.
type Command struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Envelope carries just enough of a frame element to route it.
type Envelope struct {
	Ev string `json:"ev"`
}

// StatusMessage reports connection and auth state.
type StatusMessage struct {
	Ev      string `json:"ev"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// QuoteMessage is a top-of-book NBBO update.
type QuoteMessage struct {
	Ev        string  `json:"ev"`
	Symbol    string  `json:"sym"`
	BidPrice  float64 `json:"bp"`
	BidSize   int64   `json:"bs"`
	AskPrice  float64 `json:"ap"`
	AskSize   int64   `json:"as"`
	Timestamp int64   `json:"t"`
}

// AggMessage is a per-second (A) or per-minute (AM) aggregate bar.
type AggMessage struct {
	Ev     string  `json:"ev"`
	Symbol string  `json:"sym"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	Start  int64   `json:"s"`
	End    int64   `json:"e"`
}

// ToDomain converts a quote message.
func (m QuoteMessage) ToDomain() domain.Quote {
	return domain.Quote{
		Symbol:    m.Symbol,
		BidPrice:  m.BidPrice,
		BidSize:   m.BidSize,
		AskPrice:  m.AskPrice,
		AskSize:   m.AskSize,
		Timestamp: time.UnixMilli(m.Timestamp),
	}
}

// ToDomain converts an aggregate message.
func (m AggMessage) ToDomain() domain.Bar {
	return domain.Bar{
		Symbol: m.Symbol,
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
		Start:  time.UnixMilli(m.Start),
		End:    time.UnixMilli(m.End),
	}
}
