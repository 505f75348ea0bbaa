package studio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// NewOrder is the body of POST /v2/accounts/{account}/orders.
type NewOrder struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Quantity     string `json:"quantity"`
	Price        string `json:"price"`
	OrderType    string `json:"order_type"`
	TimeInForce  string `json:"time_in_force"`
	StrategyType string `json:"strategy_type"`
	ReferenceID  string `json:"reference_id,omitempty"`
}

// NewOrderResponse is the 201 body of a successful submit.
type NewOrderResponse struct {
	OrderID string `json:"order_id"`
}

// NewOrderFromRequest renders a domain request as a day/ioc limit order
// routed through the smart order router.
func NewOrderFromRequest(req domain.OrderRequest) NewOrder {
	return NewOrder{
		Symbol:       req.Symbol,
		Side:         string(req.Side),
		Quantity:     fmt.Sprintf("%d", req.Quantity),
		Price:        req.Price.StringFixed(2),
		OrderType:    "limit",
		TimeInForce:  string(req.TimeInForce),
		StrategyType: "sor",
		ReferenceID:  req.ReferenceID,
	}
}

// --------------------------------------------------------------------------
// Activity WebSocket DTOs
// --------------------------------------------------------------------------

// Activity frame types.
const (
	TypeSubscribeActivity = "subscribe-activity"
	TypeOrderUpdate       = "order-update"
	TypeTradeNotice       = "trade-notice"
	TypePositionUpdate    = "position-update"
	TypeReplayComplete    = "replay-complete"
)

// SubscribeMessage opens the account activity stream.
type SubscribeMessage struct {
	Authorization string           `json:"authorization"`
	Payload       SubscribePayload `json:"payload"`
}

type SubscribePayload struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
}

// Frame is the envelope of every activity message.
type Frame struct {
	Payload struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	} `json:"payload"`
}

// OrderData is the payload of an order-update.
type OrderData struct {
	CreatedAt         int64       `json:"created_at"`
	UpdatedAt         int64       `json:"updated_at"`
	OrderID           string      `json:"order_id"`
	Version           int64       `json:"version"`
	AccountID         string      `json:"account_id"`
	State             string      `json:"state"`
	Status            string      `json:"status"`
	Symbol            string      `json:"symbol"`
	OrderType         string      `json:"order_type"`
	Side              string      `json:"side"`
	Quantity          json.Number `json:"quantity"`
	TimeInForce       string      `json:"time_in_force"`
	AveragePrice      json.Number `json:"average_price"`
	FilledQuantity    json.Number `json:"filled_quantity"`
	Price             json.Number `json:"price,omitempty"`
	StrategyType      string      `json:"strategy_type,omitempty"`
	OrderUpdateReason string      `json:"order_update_reason,omitempty"`
	ReferenceID       string      `json:"reference_id,omitempty"`
	Text              string      `json:"text,omitempty"`
}

// TradeData is the payload of a trade-notice.
type TradeData struct {
	CreatedAt int64       `json:"created_at"`
	AccountID string      `json:"account_id"`
	TradeID   string      `json:"trade_id"`
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Quantity  json.Number `json:"quantity"`
	Price     json.Number `json:"price"`
}

// PositionData is the payload of a position-update.
type PositionData struct {
	AccountID string      `json:"account_id"`
	Symbol    string      `json:"symbol"`
	Quantity  json.Number `json:"quantity"`
}

// --------------------------------------------------------------------------
// Conversions
// --------------------------------------------------------------------------

// ToDomain converts an order-update payload.
func (d OrderData) ToDomain() (domain.Order, error) {
	if d.OrderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order-update without order_id", domain.ErrMalformedEvent)
	}
	side, err := parseSide(d.Side)
	if err != nil {
		return domain.Order{}, err
	}
	qty, err := parseQuantity(d.Quantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s quantity: %w", d.OrderID, err)
	}
	filled, err := parseQuantity(d.FilledQuantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s filled_quantity: %w", d.OrderID, err)
	}
	price, err := parsePrice(d.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s price: %w", d.OrderID, err)
	}
	return domain.Order{
		ID:             d.OrderID,
		ReferenceID:    d.ReferenceID,
		Symbol:         d.Symbol,
		Side:           side,
		Quantity:       qty,
		FilledQuantity: filled,
		Price:          price,
		TimeInForce:    domain.TimeInForce(strings.ToLower(d.TimeInForce)),
		State:          domain.OrderState(strings.ToLower(d.State)),
		Text:           d.Text,
		UpdatedAt:      millis(d.UpdatedAt),
	}, nil
}

// ToDomain converts a trade-notice payload.
func (d TradeData) ToDomain() (domain.Trade, error) {
	side, err := parseSide(d.Side)
	if err != nil {
		return domain.Trade{}, err
	}
	qty, err := parseQuantity(d.Quantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade %s quantity: %w", d.TradeID, err)
	}
	price, err := parsePrice(d.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade %s price: %w", d.TradeID, err)
	}
	return domain.Trade{
		ID:        d.TradeID,
		OrderID:   d.OrderID,
		Symbol:    d.Symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Timestamp: millis(d.CreatedAt),
	}, nil
}

// ToDomain converts a position-update payload.
func (d PositionData) ToDomain() (domain.Position, error) {
	qty, err := parseQuantity(d.Quantity)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position %s quantity: %w", d.Symbol, err)
	}
	return domain.Position{Symbol: d.Symbol, Quantity: qty}, nil
}

func parseSide(s string) (domain.OrderSide, error) {
	side := domain.OrderSide(strings.ToLower(s))
	if !side.Valid() {
		return "", fmt.Errorf("%w: side %q", domain.ErrMalformedEvent, s)
	}
	return side, nil
}

// parseQuantity accepts whole quantities sent either as numbers or strings.
func parseQuantity(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: fractional quantity %s", domain.ErrMalformedEvent, n)
	}
	return d.IntPart(), nil
}

func parsePrice(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return d, nil
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
