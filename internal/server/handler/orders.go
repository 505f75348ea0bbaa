package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// OrderHandler serves working orders from the engine snapshot and, when a
// store is configured, the order history.
type OrderHandler struct {
	src    StatusSource
	store  domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler. store may be nil.
func NewOrderHandler(src StatusSource, store domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		src:    src,
		store:  store,
		logger: logger.With(slog.String("handler", "orders")),
	}
}

// ListOpen handles GET /api/orders. Buys are best (highest) first, sells
// best (lowest) first; ?side= narrows to one side.
func (h *OrderHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	st := h.src.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not started")
		return
	}

	buys := slices.Clone(st.Buys)
	sells := slices.Clone(st.Sells)
	slices.SortStableFunc(buys, func(a, b domain.Order) int { return b.Price.Cmp(a.Price) })
	slices.SortStableFunc(sells, func(a, b domain.Order) int { return a.Price.Cmp(b.Price) })

	resp := map[string]any{"symbol": st.Symbol}
	switch side := strings.ToLower(r.URL.Query().Get("side")); side {
	case "":
		resp["buys"] = orderViews(buys)
		resp["sells"] = orderViews(sells)
		resp["cancelling"] = orderViews(st.Cancelling)
	case string(domain.OrderSideBuy):
		resp["buys"] = orderViews(buys)
	case string(domain.OrderSideSell):
		resp["sells"] = orderViews(sells)
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/orders/history.
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "order history is not enabled")
		return
	}
	st := h.src.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not started")
		return
	}

	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, err := h.store.ListBySymbol(r.Context(), st.Symbol, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list order history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orderViews(orders)})
}
