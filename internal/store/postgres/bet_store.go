package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbet/poolhouse/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, market_id, slip_id, side, stake, payout_address,
	status, result, payout_amount,
	funding_ref, funding_address, funding_expires_at, deposit_tx_ref,
	created_at, updated_at, confirmed_at, settled_at`

// Create inserts a new bet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, market_id, slip_id, side, stake, payout_address,
			status, result, payout_amount,
			funding_ref, funding_address, funding_expires_at, deposit_tx_ref,
			created_at, updated_at, confirmed_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			NOW(), NOW(), $14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.MarketID, b.SlipID, string(b.Side), b.Stake, b.PayoutAddress,
		string(b.Status), string(b.Result), b.PayoutAmount,
		b.FundingRef, b.FundingAddress, b.FundingExpiresAt, b.DepositTxRef,
		b.ConfirmedAt, b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

// Update rewrites the mutable fields of a bet.
func (s *BetStore) Update(ctx context.Context, b domain.Bet) error {
	const query = `
		UPDATE bets SET
			status = $2, result = $3, payout_amount = $4,
			payout_address = $5, funding_ref = $6, funding_address = $7,
			funding_expires_at = $8, deposit_tx_ref = $9,
			confirmed_at = $10, settled_at = $11, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		b.ID, string(b.Status), string(b.Result), b.PayoutAmount,
		b.PayoutAddress, b.FundingRef, b.FundingAddress,
		b.FundingExpiresAt, b.DepositTxRef,
		b.ConfirmedAt, b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanBet scans a single bet row into a domain.Bet.
func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var side, status, result string
	err := row.Scan(
		&b.ID, &b.MarketID, &b.SlipID, &side, &b.Stake, &b.PayoutAddress,
		&status, &result, &b.PayoutAmount,
		&b.FundingRef, &b.FundingAddress, &b.FundingExpiresAt, &b.DepositTxRef,
		&b.CreatedAt, &b.UpdatedAt, &b.ConfirmedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Side = domain.Side(side)
	b.Status = domain.BetStatus(status)
	b.Result = domain.BetResult(result)
	return b, nil
}

// Delete removes a bet. Only placement rollback calls this, when no funding
// target could be issued for a freshly created row.
func (s *BetStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete bet %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a bet by its primary key.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// GetByFundingRef retrieves the bet tied to a wallet funding target.
func (s *BetStore) GetByFundingRef(ctx context.Context, fundingRef string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE funding_ref = $1`, fundingRef)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet by funding ref %s: %w", fundingRef, err)
	}
	return b, nil
}

// ListByMarket returns bets on one market, optionally filtered by status.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string, status domain.BetStatus) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE market_id = $1`
	args := []any{marketID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	return s.queryBets(ctx, query, args...)
}

// ListBySlip returns the bets backing one slip's legs.
func (s *BetStore) ListBySlip(ctx context.Context, slipID string) ([]domain.Bet, error) {
	return s.queryBets(ctx,
		`SELECT `+betCols+` FROM bets WHERE slip_id = $1 ORDER BY created_at ASC`,
		slipID)
}

// ListAwaitingExpiry returns awaiting-deposit bets whose funding window
// closed at or before now.
func (s *BetStore) ListAwaitingExpiry(ctx context.Context, now time.Time) ([]domain.Bet, error) {
	return s.queryBets(ctx,
		`SELECT `+betCols+` FROM bets
		 WHERE status = 'awaiting_deposit'
		   AND funding_expires_at IS NOT NULL AND funding_expires_at <= $1
		 ORDER BY funding_expires_at ASC`,
		now)
}

// ListSettledBefore returns finalized bets settled strictly before the cutoff.
func (s *BetStore) ListSettledBefore(ctx context.Context, before time.Time, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets
		WHERE settled_at IS NOT NULL AND settled_at < $1
		ORDER BY settled_at ASC`
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

	return s.queryBets(ctx, query, args...)
}

// DeleteSettledBefore removes archived bets from the hot store.
func (s *BetStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bets WHERE settled_at IS NOT NULL AND settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled bets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of bets.
func (s *BetStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count bets: %w", err)
	}
	return n, nil
}

func (s *BetStore) queryBets(ctx context.Context, query string, args ...any) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query bets rows: %w", err)
	}
	return bets, nil
}
