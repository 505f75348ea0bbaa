package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// TimeInForce is the lifetime policy attached to a submitted order.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceIOC TimeInForce = "ioc"
)

// OrderState tracks the order lifecycle as reported by the account feed.
type OrderState string

const (
	OrderStatePendingSubmit OrderState = "pending-submit"
	OrderStateOpen          OrderState = "open"
	OrderStateFilled        OrderState = "filled"
	OrderStateCancelled     OrderState = "cancelled"
	OrderStateRejected      OrderState = "rejected"
	OrderStateExpired       OrderState = "expired"
	OrderStateDone          OrderState = "done"
)

// Terminal reports whether no further updates are expected for the order.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateExpired, OrderStateDone, "canceled":
		return true
	default:
		return false
	}
}

// Order is an immutable view of one order owned by the engine.
type Order struct {
	ID             string
	ReferenceID    string
	Symbol         string
	Side           OrderSide
	Quantity       int64
	FilledQuantity int64
	Price          decimal.Decimal
	TimeInForce    TimeInForce
	State          OrderState
	Text           string
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() int64 {
	if o.FilledQuantity >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

// OrderRequest is what the engine hands to the order gateway.
type OrderRequest struct {
	Symbol      string
	Side        OrderSide
	Quantity    int64
	Price       decimal.Decimal
	TimeInForce TimeInForce
	ReferenceID string
}

// RiskLimits are the per-engine position and sizing limits.
type RiskLimits struct {
	MaxPosition int64
	MinSize     int64
	MaxSize     int64
	MinTick     decimal.Decimal
	MaxRejects  int
}
