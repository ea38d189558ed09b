package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbet/poolhouse/internal/domain"
)

// SettlementEventStore implements domain.SettlementEventStore using
// PostgreSQL. The table is append-only; the idempotency key is the primary
// key, so a replayed event inserts zero rows.
type SettlementEventStore struct {
	pool *pgxpool.Pool
}

// NewSettlementEventStore creates a new SettlementEventStore backed by the
// given connection pool.
func NewSettlementEventStore(pool *pgxpool.Pool) *SettlementEventStore {
	return &SettlementEventStore{pool: pool}
}

// Insert records the event. It returns false when the key was already
// present, which callers treat as an at-least-once replay.
func (s *SettlementEventStore) Insert(ctx context.Context, event domain.SettlementEvent) (bool, error) {
	const query = `
		INSERT INTO settlement_events (key, kind, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, event.Key, event.Kind, event.Payload)
	if err != nil {
		return false, fmt.Errorf("postgres: insert settlement event %s: %w", event.Key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Seen reports whether the idempotency key was already recorded.
func (s *SettlementEventStore) Seen(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM settlement_events WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check settlement event %s: %w", key, err)
	}
	return exists, nil
}

// ListBefore returns events recorded strictly before the cutoff, oldest first.
func (s *SettlementEventStore) ListBefore(ctx context.Context, before time.Time, opts domain.ListOpts) ([]domain.SettlementEvent, error) {
	query := `SELECT key, kind, payload, created_at FROM settlement_events
		WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlement events: %w", err)
	}
	defer rows.Close()

	var events []domain.SettlementEvent
	for rows.Next() {
		var e domain.SettlementEvent
		if err := rows.Scan(&e.Key, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlement events rows: %w", err)
	}
	return events, nil
}

// DeleteBefore removes archived events from the hot store.
func (s *SettlementEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM settlement_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlement events: %w", err)
	}
	return tag.RowsAffected(), nil
}
