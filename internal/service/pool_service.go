package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/engine"
)

// MarketQuotes is the live pricing view of one market.
type MarketQuotes struct {
	MarketID string       `json:"market_id"`
	SideA    engine.Quote `json:"side_a"`
	SideB    engine.Quote `json:"side_b"`
	FeePPM   int64        `json:"fee_ppm"`
}

// PoolService owns market pool state: creation, pool credits, snapshots, and
// the betting-window sweep. All pool mutations for one market run under that
// market's lock; markets never share a lock.
type PoolService struct {
	markets   domain.MarketStore
	snapshots domain.SnapshotCache
	locks     domain.LockManager
	audit     domain.AuditStore
	feePPM    int64
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewPoolService creates a PoolService with all required dependencies.
func NewPoolService(
	markets domain.MarketStore,
	snapshots domain.SnapshotCache,
	locks domain.LockManager,
	audit domain.AuditStore,
	feePPM int64,
	lockTTL time.Duration,
	logger *slog.Logger,
) *PoolService {
	return &PoolService{
		markets:   markets,
		snapshots: snapshots,
		locks:     locks,
		audit:     audit,
		feePPM:    feePPM,
		lockTTL:   lockTTL,
		logger:    logger.With(slog.String("component", "pool_service")),
	}
}

func marketLock(id string) string { return "market:" + id }

// CreateMarket registers a new open market with empty pools.
func (s *PoolService) CreateMarket(ctx context.Context, m domain.Market) (domain.Market, error) {
	if m.ID == "" {
		return domain.Market{}, fmt.Errorf("pool_service: create market: missing id")
	}
	if !m.BettingClosesAt.Before(m.ResolutionTime) && !m.BettingClosesAt.Equal(m.ResolutionTime) {
		return domain.Market{}, fmt.Errorf("pool_service: create market %s: betting close must not be after resolution time", m.ID)
	}
	if m.Labels[0] == "" {
		m.Labels[0] = "YES"
	}
	if m.Labels[1] == "" {
		m.Labels[1] = "NO"
	}
	m.Status = domain.MarketStatusOpen
	m.PoolA, m.PoolB = 0, 0
	m.Outcome = ""

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("pool_service: create market %s: %w", m.ID, err)
	}

	s.auditLog(ctx, m.ID, "market_created", map[string]any{
		"question":          m.Question,
		"betting_closes_at": m.BettingClosesAt,
	})
	return m, nil
}

// Credit adds a confirmed stake to one side's pool, recording the deposit's
// idempotency key in the same store transaction so a redelivered event can
// never enter twice. It returns false when the key was already recorded and
// the pool was left alone. Fails with domain.ErrMarketClosed when the market
// no longer accepts bets. This is the only path by which stake enters a pool.
func (s *PoolService) Credit(ctx context.Context, marketID string, side domain.Side, amount int64, event domain.SettlementEvent) (bool, error) {
	if !side.Valid() {
		return false, fmt.Errorf("pool_service: credit %s: invalid side %q", marketID, side)
	}
	if amount <= 0 {
		return false, fmt.Errorf("pool_service: credit %s: %w", marketID, domain.ErrInvalidStake)
	}

	unlock, err := s.locks.AcquireWait(ctx, marketLock(marketID), s.lockTTL)
	if err != nil {
		return false, fmt.Errorf("pool_service: credit %s: %w", marketID, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return false, fmt.Errorf("pool_service: credit %s: %w", marketID, err)
	}
	if !m.AcceptingBets(time.Now().UTC()) {
		return false, fmt.Errorf("pool_service: credit %s: %w", marketID, domain.ErrMarketClosed)
	}

	credited, err := s.markets.CreditPoolOnce(ctx, marketID, side, amount, event)
	if err != nil {
		return false, fmt.Errorf("pool_service: credit %s: %w", marketID, err)
	}
	if !credited {
		return false, nil
	}

	if err := s.snapshots.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "snapshot invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, marketID, "pool_credited", map[string]any{
		"side":   string(side),
		"amount": amount,
		"event":  event.Key,
	})
	return true, nil
}

// GetMarket retrieves a market by ID straight from the store.
func (s *PoolService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("pool_service: get market %q: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns markets, optionally filtered to one status.
func (s *PoolService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	var (
		markets []domain.Market
		err     error
	)
	if status == "" {
		markets, err = s.markets.List(ctx, opts)
	} else {
		markets, err = s.markets.ListByStatus(ctx, status, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("pool_service: list markets: %w", err)
	}
	return markets, nil
}

// Snapshot returns the pool state of one market, serving from the cache when
// fresh and backfilling it on a miss.
func (s *PoolService) Snapshot(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	if snap, err := s.snapshots.Get(ctx, marketID); err == nil {
		return snap, nil
	}

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("pool_service: snapshot %q: %w", marketID, err)
	}

	snap := domain.MarketSnapshot{
		MarketID:        m.ID,
		PoolA:           m.PoolA,
		PoolB:           m.PoolB,
		Status:          m.Status,
		Outcome:         m.Outcome,
		BettingClosesAt: m.BettingClosesAt,
		AsOf:            time.Now().UTC(),
	}
	if cacheErr := s.snapshots.Set(ctx, snap); cacheErr != nil {
		s.logger.WarnContext(ctx, "snapshot cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", cacheErr.Error()),
		)
	}
	return snap, nil
}

// Quotes derives implied odds for both sides from the current snapshot.
func (s *PoolService) Quotes(ctx context.Context, marketID string) (MarketQuotes, error) {
	snap, err := s.Snapshot(ctx, marketID)
	if err != nil {
		return MarketQuotes{}, err
	}
	return MarketQuotes{
		MarketID: marketID,
		SideA:    engine.ImpliedQuote(snap.PoolA, snap.PoolB),
		SideB:    engine.ImpliedQuote(snap.PoolB, snap.PoolA),
		FeePPM:   s.feePPM,
	}, nil
}

// PreviewPayout estimates what a stake would return if it joined the given
// side right now and the market resolved that way. Display only.
func (s *PoolService) PreviewPayout(ctx context.Context, marketID string, side domain.Side, stake int64) (int64, error) {
	if !side.Valid() || stake <= 0 {
		return 0, fmt.Errorf("pool_service: preview %s: %w", marketID, domain.ErrInvalidStake)
	}
	snap, err := s.Snapshot(ctx, marketID)
	if err != nil {
		return 0, err
	}
	sideAfter := snap.PoolA
	if side == domain.SideB {
		sideAfter = snap.PoolB
	}
	sideAfter += stake
	totalAfter := snap.PoolA + snap.PoolB + stake
	return engine.PotentialPayout(stake, sideAfter, totalAfter, s.feePPM), nil
}

// CloseDue moves open markets whose betting window has passed to closed.
// Called periodically by the expiry worker.
func (s *PoolService) CloseDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.markets.ListPastClose(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("pool_service: close due: %w", err)
	}

	closed := 0
	for _, m := range due {
		unlock, err := s.locks.AcquireWait(ctx, marketLock(m.ID), s.lockTTL)
		if err != nil {
			return closed, fmt.Errorf("pool_service: close due %s: %w", m.ID, err)
		}
		err = s.markets.MarkClosed(ctx, m.ID)
		unlock()
		if err != nil {
			return closed, fmt.Errorf("pool_service: close due %s: %w", m.ID, err)
		}

		if err := s.snapshots.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "snapshot invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
		s.auditLog(ctx, m.ID, "market_closed", nil)
		closed++
	}
	return closed, nil
}

func (s *PoolService) auditLog(ctx context.Context, marketID, action string, detail map[string]any) {
	var payload []byte
	if detail != nil {
		payload, _ = json.Marshal(detail)
	}
	err := s.audit.Insert(ctx, domain.AuditEntry{
		EntityKind: "market",
		EntityID:   marketID,
		Action:     action,
		Detail:     payload,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit insert failed",
			slog.String("market_id", marketID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
