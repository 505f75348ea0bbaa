package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// OrderStore implements domain.OrderStore. One row per order id holds the
// latest state reported by the account feed.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert inserts the order or overwrites its mutable columns. An update
// older than the stored row is ignored.
func (s *OrderStore) Upsert(ctx context.Context, o domain.Order) error {
	updatedAt := o.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	const query = `
		INSERT INTO orders (
			id, reference_id, symbol, side, quantity, filled_quantity,
			price, time_in_force, state, text, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			reference_id    = COALESCE(NULLIF(EXCLUDED.reference_id, ''), orders.reference_id),
			filled_quantity = EXCLUDED.filled_quantity,
			state           = EXCLUDED.state,
			text            = EXCLUDED.text,
			updated_at      = EXCLUDED.updated_at
		WHERE orders.updated_at <= EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.ReferenceID, o.Symbol, string(o.Side),
		o.Quantity, o.FilledQuantity, o.Price.String(),
		string(o.TimeInForce), string(o.State), o.Text, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.ID, err)
	}
	return nil
}

const orderSelectCols = `id, reference_id, symbol, side, quantity, filled_quantity,
	price::text, time_in_force, state, text, updated_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, tif, state, price string

	err := scanner.Scan(
		&o.ID, &o.ReferenceID, &o.Symbol, &side,
		&o.Quantity, &o.FilledQuantity, &price,
		&tif, &state, &o.Text, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.TimeInForce = domain.TimeInForce(tif)
	o.State = domain.OrderState(state)
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("price %q: %w", price, err)
	}
	return o, nil
}

// GetByID returns domain.ErrNotFound for an unknown id.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListBySymbol returns orders for symbol, most recently updated first.
func (s *OrderStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := appendListOpts(
		`SELECT `+orderSelectCols+` FROM orders WHERE symbol = $1`,
		[]any{symbol}, "updated_at", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", symbol, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
