package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbet/poolhouse/internal/domain"
)

// SlipStore implements domain.SlipStore using PostgreSQL. Legs live in a
// JSONB column; they are small, ordered, and always read with the slip.
type SlipStore struct {
	pool *pgxpool.Pool
}

// NewSlipStore creates a new SlipStore backed by the given connection pool.
func NewSlipStore(pool *pgxpool.Pool) *SlipStore {
	return &SlipStore{pool: pool}
}

const slipCols = `id, legs, status, payout_address,
	funding_ref, funding_address, funding_currency, funding_amount,
	funding_expires_at, deposit_tx_ref, total_payout,
	created_at, updated_at, settled_at`

// Create inserts a new slip.
func (s *SlipStore) Create(ctx context.Context, sl domain.Slip) error {
	legsJSON, err := json.Marshal(sl.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal slip legs: %w", err)
	}

	const query = `
		INSERT INTO slips (
			id, legs, status, payout_address,
			funding_ref, funding_address, funding_currency, funding_amount,
			funding_expires_at, deposit_tx_ref, total_payout,
			created_at, updated_at, settled_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			NOW(), NOW(), $12
		)`

	_, err = s.pool.Exec(ctx, query,
		sl.ID, legsJSON, string(sl.Status), sl.PayoutAddress,
		sl.FundingRef, sl.FundingAddress, sl.FundingCurrency, sl.FundingAmount,
		sl.FundingExpiresAt, sl.DepositTxRef, sl.TotalPayout,
		sl.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create slip %s: %w", sl.ID, err)
	}
	return nil
}

// Update rewrites the mutable fields of a slip, legs included.
func (s *SlipStore) Update(ctx context.Context, sl domain.Slip) error {
	legsJSON, err := json.Marshal(sl.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal slip legs: %w", err)
	}

	const query = `
		UPDATE slips SET
			legs = $2, status = $3, payout_address = $4,
			funding_ref = $5, funding_address = $6, funding_currency = $7,
			funding_amount = $8, funding_expires_at = $9, deposit_tx_ref = $10,
			total_payout = $11, settled_at = $12, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		sl.ID, legsJSON, string(sl.Status), sl.PayoutAddress,
		sl.FundingRef, sl.FundingAddress, sl.FundingCurrency,
		sl.FundingAmount, sl.FundingExpiresAt, sl.DepositTxRef,
		sl.TotalPayout, sl.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update slip %s: %w", sl.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanSlip scans a single slip row into a domain.Slip.
func scanSlip(row pgx.Row) (domain.Slip, error) {
	var sl domain.Slip
	var status string
	var legsJSON []byte
	err := row.Scan(
		&sl.ID, &legsJSON, &status, &sl.PayoutAddress,
		&sl.FundingRef, &sl.FundingAddress, &sl.FundingCurrency, &sl.FundingAmount,
		&sl.FundingExpiresAt, &sl.DepositTxRef, &sl.TotalPayout,
		&sl.CreatedAt, &sl.UpdatedAt, &sl.SettledAt,
	)
	if err != nil {
		return domain.Slip{}, err
	}
	sl.Status = domain.SlipStatus(status)
	if len(legsJSON) > 0 {
		if err := json.Unmarshal(legsJSON, &sl.Legs); err != nil {
			return domain.Slip{}, fmt.Errorf("unmarshal slip legs: %w", err)
		}
	}
	return sl, nil
}

// GetByID retrieves a slip by its primary key.
func (s *SlipStore) GetByID(ctx context.Context, id string) (domain.Slip, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+slipCols+` FROM slips WHERE id = $1`, id)
	sl, err := scanSlip(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Slip{}, domain.ErrNotFound
		}
		return domain.Slip{}, fmt.Errorf("postgres: get slip %s: %w", id, err)
	}
	return sl, nil
}

// GetByFundingRef retrieves the slip tied to a wallet funding target.
func (s *SlipStore) GetByFundingRef(ctx context.Context, fundingRef string) (domain.Slip, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+slipCols+` FROM slips WHERE funding_ref = $1`, fundingRef)
	sl, err := scanSlip(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Slip{}, domain.ErrNotFound
		}
		return domain.Slip{}, fmt.Errorf("postgres: get slip by funding ref %s: %w", fundingRef, err)
	}
	return sl, nil
}

// ListByStatus returns slips in the given status.
func (s *SlipStore) ListByStatus(ctx context.Context, status domain.SlipStatus, opts domain.ListOpts) ([]domain.Slip, error) {
	query := `SELECT ` + slipCols + ` FROM slips WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(status)}
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
		return nil, fmt.Errorf("postgres: list slips: %w", err)
	}
	defer rows.Close()

	var slips []domain.Slip
	for rows.Next() {
		sl, err := scanSlip(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan slip: %w", err)
		}
		slips = append(slips, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list slips rows: %w", err)
	}
	return slips, nil
}

// Count returns the total number of slips.
func (s *SlipStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM slips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count slips: %w", err)
	}
	return n, nil
}
