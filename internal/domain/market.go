package domain

import "time"

// Quote is the top of book for one symbol.
type Quote struct {
	Symbol    string
	BidPrice  float64
	BidSize   int64
	AskPrice  float64
	AskSize   int64
	Timestamp time.Time
}

// Valid reports whether both sides carry a usable price.
func (q Quote) Valid() bool {
	return q.BidPrice > 0 && q.AskPrice > 0
}

// Mid returns the midpoint of the best bid and ask.
func (q Quote) Mid() float64 {
	return (q.BidPrice + q.AskPrice) / 2.0
}

// Bar is one aggregate (second or minute) for a symbol.
type Bar struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Start  time.Time
	End    time.Time
}
