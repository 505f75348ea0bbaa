package domain

import "github.com/shopspring/decimal"

// ActionKind is what a strategy asks the engine to do.
type ActionKind string

const (
	ActionSubmit    ActionKind = "submit"
	ActionCancel    ActionKind = "cancel"
	ActionCancelAll ActionKind = "cancel_all"
)

// Action is a single desired change to the engine's working orders.
// Submit uses Side, Quantity, Price and TimeInForce; Cancel uses OrderID.
type Action struct {
	Kind        ActionKind
	Side        OrderSide
	Quantity    int64
	Price       decimal.Decimal
	TimeInForce TimeInForce
	OrderID     string
	Reason      string
}

func Submit(side OrderSide, qty int64, price decimal.Decimal, tif TimeInForce, reason string) Action {
	return Action{Kind: ActionSubmit, Side: side, Quantity: qty, Price: price, TimeInForce: tif, Reason: reason}
}

func Cancel(orderID, reason string) Action {
	return Action{Kind: ActionCancel, OrderID: orderID, Reason: reason}
}

func CancelAll(reason string) Action {
	return Action{Kind: ActionCancelAll, Reason: reason}
}
