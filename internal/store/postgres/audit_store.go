package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

const (
	insertAuditSQL = `INSERT INTO audit_log (symbol, event, detail) VALUES ($1, $2, $3)`
	selectAuditSQL = `SELECT id, event, detail, created_at FROM audit_log WHERE symbol = $1`
)

// AuditStore is the audit_log table. Several engines may share the table;
// each store only reads and writes rows for its own symbol.
type AuditStore struct {
	pool   *pgxpool.Pool
	symbol string
}

func NewAuditStore(pool *pgxpool.Pool, symbol string) *AuditStore {
	return &AuditStore{pool: pool, symbol: symbol}
}

// Log appends one entry. An empty detail is stored as NULL.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	var payload []byte
	if len(detail) > 0 {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("postgres: audit %s: encode detail: %w", event, err)
		}
		payload = b
	}
	if _, err := s.pool.Exec(ctx, insertAuditSQL, s.symbol, event, payload); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := appendListOpts(selectAuditSQL, []any{s.symbol}, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit log: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: read audit log: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e   domain.AuditEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("decode detail of entry %d: %w", e.ID, err)
		}
	}
	return e, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
