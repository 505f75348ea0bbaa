package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the authoritative net quantity reported by the account feed.
type Position struct {
	Symbol   string
	Quantity int64
}

// Trade is a fill notice against one of the account's orders.
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      OrderSide
	Quantity  int64
	Price     decimal.Decimal
	Timestamp time.Time
}
