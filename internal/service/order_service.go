// Package service holds the layers between the engine and the platform
// clients: the gateway decorator and the session journal.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Gateway is the order entry API the service wraps.
type Gateway interface {
	Submit(ctx context.Context, req domain.OrderRequest) (string, error)
	Cancel(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context, symbol string) error
}

// OrderService logs every gateway call with its latency and announces the
// outcome on the "orders:{symbol}" channel. It is itself a Gateway.
type OrderService struct {
	gw     Gateway
	bus    domain.SignalBus
	symbol string
	logger *slog.Logger
}

// NewOrderService wraps gw. bus may be nil.
func NewOrderService(gw Gateway, bus domain.SignalBus, symbol string, logger *slog.Logger) *OrderService {
	return &OrderService{
		gw:     gw,
		bus:    bus,
		symbol: symbol,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest) (string, error) {
	start := time.Now()
	id, err := s.gw.Submit(ctx, req)
	s.report(ctx, "submit", start, err, map[string]any{
		"order_id":      id,
		"reference_id":  req.ReferenceID,
		"side":          string(req.Side),
		"quantity":      req.Quantity,
		"price":         req.Price.StringFixed(2),
		"time_in_force": string(req.TimeInForce),
	})
	return id, err
}

func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	start := time.Now()
	err := s.gw.Cancel(ctx, orderID)
	s.report(ctx, "cancel", start, err, map[string]any{"order_id": orderID})
	return err
}

func (s *OrderService) CancelAll(ctx context.Context, symbol string) error {
	start := time.Now()
	err := s.gw.CancelAll(ctx, symbol)
	s.report(ctx, "cancel_all", start, err, map[string]any{"symbol": symbol})
	return err
}

func (s *OrderService) report(ctx context.Context, op string, start time.Time, err error, detail map[string]any) {
	latency := time.Since(start)
	attrs := []any{
		slog.String("op", op),
		slog.String("symbol", s.symbol),
		slog.Duration("latency", latency),
	}
	if err != nil {
		s.logger.WarnContext(ctx, "gateway call failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		s.logger.DebugContext(ctx, "gateway call", attrs...)
	}

	if s.bus == nil {
		return
	}
	detail["op"] = op
	detail["ok"] = err == nil
	detail["latency_ms"] = latency.Milliseconds()
	if err != nil {
		detail["error"] = err.Error()
	}
	payload, mErr := json.Marshal(detail)
	if mErr != nil {
		return
	}
	if pubErr := s.bus.Publish(ctx, domain.OrdersChannel(s.symbol), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "order_service: publish event failed",
			slog.String("op", op),
			slog.String("error", pubErr.Error()),
		)
	}
}
