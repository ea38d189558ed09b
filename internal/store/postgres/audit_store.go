package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbet/poolhouse/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Insert appends a new audit entry. Detail is stored as JSONB.
func (s *AuditStore) Insert(ctx context.Context, e domain.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (entity_kind, entity_id, action, detail)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, e.EntityKind, e.EntityID, e.Action, e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: insert audit entry %s/%s: %w", e.EntityKind, e.Action, err)
	}
	return nil
}

// List returns audit entries, newest first, optionally narrowed to one
// entity. Empty entityKind/entityID mean no filter.
func (s *AuditStore) List(ctx context.Context, entityKind, entityID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, entity_kind, entity_id, action, detail, created_at
		FROM audit_log WHERE 1=1`
	args := []any{}
	argIdx := 1

	if entityKind != "" {
		query += fmt.Sprintf(" AND entity_kind = $%d", argIdx)
		args = append(args, entityKind)
		argIdx++
	}
	if entityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, entityID)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.EntityKind, &e.EntityID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}
