package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbet/poolhouse/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL. Rows are
// imported historical payouts in whatever shape they survived in; the
// reconciler normalizes them at read time.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

const historyCols = `id, kind, type, settlement_type, unopposed,
	side, outcome, stake, payout, market_ref,
	description, legs_total, wins_count, legs, recorded_at`

// Insert stores one imported record. Re-importing an id overwrites it so an
// import job can be re-run safely.
func (s *HistoryStore) Insert(ctx context.Context, r domain.HistoryRecord) error {
	var legsJSON []byte
	if r.Legs != nil {
		var err error
		legsJSON, err = json.Marshal(r.Legs)
		if err != nil {
			return fmt.Errorf("postgres: marshal history legs: %w", err)
		}
	}

	const query = `
		INSERT INTO history_records (
			id, kind, type, settlement_type, unopposed,
			side, outcome, stake, payout, market_ref,
			description, legs_total, wins_count, legs, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
		ON CONFLICT (id) DO UPDATE SET
			kind            = EXCLUDED.kind,
			type            = EXCLUDED.type,
			settlement_type = EXCLUDED.settlement_type,
			unopposed       = EXCLUDED.unopposed,
			side            = EXCLUDED.side,
			outcome         = EXCLUDED.outcome,
			stake           = EXCLUDED.stake,
			payout          = EXCLUDED.payout,
			market_ref      = EXCLUDED.market_ref,
			description     = EXCLUDED.description,
			legs_total      = EXCLUDED.legs_total,
			wins_count      = EXCLUDED.wins_count,
			legs            = EXCLUDED.legs,
			recorded_at     = EXCLUDED.recorded_at`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.Kind, r.Type, r.SettlementType, r.Unopposed,
		r.Side, r.Outcome, r.Stake, r.Payout, r.MarketRef,
		r.Description, r.LegsTotal, r.WinsCount, legsJSON, r.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert history record %s: %w", r.ID, err)
	}
	return nil
}

// scanHistory scans a single history row.
func scanHistory(row pgx.Row) (domain.HistoryRecord, error) {
	var r domain.HistoryRecord
	var legsJSON []byte
	err := row.Scan(
		&r.ID, &r.Kind, &r.Type, &r.SettlementType, &r.Unopposed,
		&r.Side, &r.Outcome, &r.Stake, &r.Payout, &r.MarketRef,
		&r.Description, &r.LegsTotal, &r.WinsCount, &legsJSON, &r.RecordedAt,
	)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	if len(legsJSON) > 0 {
		if err := json.Unmarshal(legsJSON, &r.Legs); err != nil {
			return domain.HistoryRecord{}, fmt.Errorf("unmarshal history legs: %w", err)
		}
	}
	return r, nil
}

// GetByID retrieves a record by its primary key.
func (s *HistoryStore) GetByID(ctx context.Context, id string) (domain.HistoryRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+historyCols+` FROM history_records WHERE id = $1`, id)
	r, err := scanHistory(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.HistoryRecord{}, domain.ErrNotFound
		}
		return domain.HistoryRecord{}, fmt.Errorf("postgres: get history record %s: %w", id, err)
	}
	return r, nil
}

// List returns records with pagination and optional time filtering,
// oldest first so reports read chronologically.
func (s *HistoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.HistoryRecord, error) {
	query := `SELECT ` + historyCols + ` FROM history_records WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND recorded_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND recorded_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY recorded_at ASC"

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
		return nil, fmt.Errorf("postgres: list history records: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan history record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list history records rows: %w", err)
	}
	return records, nil
}

// Count returns the total number of history records.
func (s *HistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM history_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count history records: %w", err)
	}
	return n, nil
}
