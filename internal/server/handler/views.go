package handler

import (
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/engine"
	"github.com/alanyoungcy/studiobot/internal/strategy"
)

// OrderView is the JSON form of a working order.
type OrderView struct {
	ID             string    `json:"id"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	Side           string    `json:"side"`
	Quantity       int64     `json:"quantity"`
	FilledQuantity int64     `json:"filled_quantity"`
	Price          string    `json:"price"`
	TimeInForce    string    `json:"time_in_force,omitempty"`
	State          string    `json:"state"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newOrderView(o domain.Order) OrderView {
	return OrderView{
		ID:             o.ID,
		ReferenceID:    o.ReferenceID,
		Side:           string(o.Side),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Price:          o.Price.StringFixed(2),
		TimeInForce:    string(o.TimeInForce),
		State:          string(o.State),
		UpdatedAt:      o.UpdatedAt,
	}
}

func orderViews(orders []domain.Order) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderView(o))
	}
	return out
}

// QuoteView is the last top of book.
type QuoteView struct {
	BidPrice  float64   `json:"bid_price"`
	BidSize   int64     `json:"bid_size"`
	AskPrice  float64   `json:"ask_price"`
	AskSize   int64     `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultView is one action outcome of the last evaluation.
type ResultView struct {
	Kind     string `json:"kind"`
	Side     string `json:"side,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
	Price    string `json:"price,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	Status   string `json:"status"`
	Allowed  int64  `json:"allowed,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newResultView(r strategy.Result) ResultView {
	v := ResultView{
		Kind:     string(r.Action.Kind),
		Side:     string(r.Action.Side),
		Quantity: r.Action.Quantity,
		OrderID:  r.OrderID,
		Status:   string(r.Status),
		Allowed:  r.Allowed,
		Reason:   r.Reason,
		Error:    r.Error,
	}
	if r.Action.Kind == domain.ActionSubmit {
		v.Price = r.Action.Price.StringFixed(2)
	}
	if v.OrderID == "" {
		v.OrderID = r.Action.OrderID
	}
	return v
}

// StatusView is the JSON form of engine.Status.
type StatusView struct {
	Symbol      string       `json:"symbol"`
	Policy      string       `json:"policy"`
	Ready       bool         `json:"ready"`
	Halted      bool         `json:"halted"`
	Dirty       bool         `json:"dirty"`
	Position    int64        `json:"position"`
	Rejects     int          `json:"rejects"`
	InFlight    int          `json:"in_flight"`
	Unconfirmed int          `json:"unconfirmed"`
	OpenBuys    int          `json:"open_buys"`
	OpenSells   int          `json:"open_sells"`
	Cancelling  int          `json:"cancelling"`
	Theo        *float64     `json:"theo"`
	Quote       *QuoteView   `json:"quote,omitempty"`
	Evals       int64        `json:"evals"`
	LastEval    *time.Time   `json:"last_eval,omitempty"`
	LastPass    []ResultView `json:"last_pass"`
	Queued      int          `json:"queued"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewStatusView converts an engine snapshot for JSON output.
func NewStatusView(st *engine.Status) StatusView {
	v := StatusView{
		Symbol:      st.Symbol,
		Policy:      st.Policy,
		Ready:       st.Ready,
		Halted:      st.Halted,
		Dirty:       st.Dirty,
		Position:    st.Position,
		Rejects:     st.Rejects,
		InFlight:    st.InFlight,
		Unconfirmed: st.Unconfirmed,
		OpenBuys:    len(st.Buys),
		OpenSells:   len(st.Sells),
		Cancelling:  len(st.Cancelling),
		Evals:       st.Evals,
		LastPass:    make([]ResultView, 0, len(st.Last)),
		Queued:      st.Queued,
		UpdatedAt:   st.UpdatedAt,
	}
	if st.HasTheo {
		theo := st.Theo
		v.Theo = &theo
	}
	if st.Quote != nil {
		v.Quote = &QuoteView{
			BidPrice:  st.Quote.BidPrice,
			BidSize:   st.Quote.BidSize,
			AskPrice:  st.Quote.AskPrice,
			AskSize:   st.Quote.AskSize,
			Timestamp: st.Quote.Timestamp,
		}
	}
	if !st.LastEval.IsZero() {
		t := st.LastEval
		v.LastEval = &t
	}
	for _, r := range st.Last {
		v.LastPass = append(v.LastPass, newResultView(r))
	}
	return v
}
