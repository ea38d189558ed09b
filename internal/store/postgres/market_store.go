package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietbet/poolhouse/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, label_a, label_b, pool_a, pool_b,
	betting_closes_at, resolution_time, status, outcome, resolution_ref,
	created_at, updated_at`

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, label_a, label_b, pool_a, pool_b,
			betting_closes_at, resolution_time, status, outcome,
			resolution_ref, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Labels[0], m.Labels[1], m.PoolA, m.PoolB,
		m.BettingClosesAt, m.ResolutionTime, string(m.Status),
		string(m.Outcome), m.ResolutionRef,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, outcome string
	err := row.Scan(
		&m.ID, &m.Question, &m.Labels[0], &m.Labels[1],
		&m.PoolA, &m.PoolB,
		&m.BettingClosesAt, &m.ResolutionTime,
		&status, &outcome, &m.ResolutionRef,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	m.Outcome = domain.Outcome(outcome)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, "", opts)
}

// ListByStatus returns markets in the given status.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, status, opts)
}

func (s *MarketStore) list(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(status))
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

	query += " ORDER BY betting_closes_at ASC"

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// errCreditRejected signals a rejected pool update inside the credit
// transaction so the whole thing rolls back, key row included.
var errCreditRejected = errors.New("postgres: credit rejected")

// CreditPoolOnce adds amount to one side's pool and records the event key in
// the same transaction. A key already present means the credit landed in an
// earlier delivery: the pool stays untouched and false comes back. Only open
// markets inside their betting window take credits; a rejected credit rolls
// the transaction back so the key is never consumed by a deposit that moved
// no money.
func (s *MarketStore) CreditPoolOnce(ctx context.Context, marketID string, side domain.Side, amount int64, event domain.SettlementEvent) (bool, error) {
	col := "pool_a"
	if side == domain.SideB {
		col = "pool_b"
	}
	update := fmt.Sprintf(
		`UPDATE markets SET %s = %s + $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'open' AND betting_closes_at > NOW()`, col, col)

	credited := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO settlement_events (key, kind, payload)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO NOTHING`,
			event.Key, event.Kind, event.Payload)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, update, marketID, amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errCreditRejected
		}
		credited = true
		return nil
	})
	if errors.Is(err, errCreditRejected) {
		if _, gerr := s.GetByID(ctx, marketID); gerr != nil {
			return false, gerr
		}
		return false, fmt.Errorf("postgres: credit pool %s: %w", marketID, domain.ErrMarketClosed)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: credit pool %s/%s: %w", marketID, side, err)
	}
	return credited, nil
}

// MarkClosed moves an open market to closed. Resolving markets skip this
// state freely, so a missing transition is not an error.
func (s *MarketStore) MarkClosed(ctx context.Context, marketID string) error {
	const query = `
		UPDATE markets SET status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'open'`

	if _, err := s.pool.Exec(ctx, query, marketID); err != nil {
		return fmt.Errorf("postgres: close market %s: %w", marketID, err)
	}
	return nil
}

// MarkResolved freezes the pools and records the outcome exactly once.
func (s *MarketStore) MarkResolved(ctx context.Context, marketID string, outcome domain.Outcome, resolutionRef string) error {
	const query = `
		UPDATE markets
		SET status = 'resolved', outcome = $2, resolution_ref = $3, updated_at = NOW()
		WHERE id = $1 AND status <> 'resolved'`

	tag, err := s.pool.Exec(ctx, query, marketID, string(outcome), resolutionRef)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, marketID); err != nil {
			return err
		}
		return fmt.Errorf("postgres: resolve market %s: %w", marketID, domain.ErrAlreadyResolved)
	}
	return nil
}

// ListPastClose returns open markets whose betting window has passed.
func (s *MarketStore) ListPastClose(ctx context.Context, now time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE status = 'open' AND betting_closes_at <= $1
		ORDER BY betting_closes_at ASC`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list past-close markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list past-close markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}
