package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/engine"
)

// SettlementService reacts to oracle resolution events: it freezes the
// market, runs the pool arithmetic once, then settles every confirmed bet
// and rolls the results up into their slips. Oracle delivery is
// at-least-once: each step is replay-safe behind its entity's status guard,
// and the resolution key is recorded only once everything settled, so a
// redelivery after a partial failure completes the work instead of being
// dropped.
type SettlementService struct {
	markets   domain.MarketStore
	bets      domain.BetStore
	slips     domain.SlipStore
	events    domain.SettlementEventStore
	history   domain.HistoryStore
	snapshots domain.SnapshotCache
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore

	feePPM  int64
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewSettlementService creates a SettlementService with all required
// dependencies.
func NewSettlementService(
	markets domain.MarketStore,
	bets domain.BetStore,
	slips domain.SlipStore,
	events domain.SettlementEventStore,
	history domain.HistoryStore,
	snapshots domain.SnapshotCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	feePPM int64,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		markets:   markets,
		bets:      bets,
		slips:     slips,
		events:    events,
		history:   history,
		snapshots: snapshots,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		feePPM:    feePPM,
		lockTTL:   lockTTL,
		logger:    logger.With(slog.String("component", "settlement_service")),
	}
}

// HandleResolution applies an oracle resolution end to end. A replay of a
// fully settled resolution ref is a no-op; a redelivery after a partial
// failure picks up where the failed run stopped. A second resolution of an
// already-resolved market is treated as success rather than an error.
func (s *SettlementService) HandleResolution(ctx context.Context, ev domain.ResolutionEvent) error {
	if _, decisive := ev.Outcome.WinningSide(); !decisive && ev.Outcome != domain.OutcomeVoid {
		return fmt.Errorf("settlement_service: resolve %s: invalid outcome %q", ev.MarketID, ev.Outcome)
	}

	key := domain.ResolutionKey(ev.MarketID, ev.ResolutionRef)
	seen, err := s.events.Seen(ctx, key)
	if err != nil {
		return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
	}
	if seen {
		s.logger.InfoContext(ctx, "resolution replay dropped",
			slog.String("market_id", ev.MarketID),
			slog.String("resolution_ref", ev.ResolutionRef),
		)
		return nil
	}

	unlock, err := s.locks.AcquireWait(ctx, marketLock(ev.MarketID), s.lockTTL)
	if err != nil {
		return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
	}

	err = s.markets.MarkResolved(ctx, ev.MarketID, ev.Outcome, ev.ResolutionRef)
	unlock()
	switch {
	case errors.Is(err, domain.ErrAlreadyResolved):
		// Not an error; per-bet settlement below is itself idempotent, so
		// fall through and sweep for any bets a crashed run left behind.
		s.logger.InfoContext(ctx, "market already resolved",
			slog.String("market_id", ev.MarketID),
		)
	case err != nil:
		return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
	}

	market, err := s.markets.GetByID(ctx, ev.MarketID)
	if err != nil {
		return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
	}

	if err := s.snapshots.Invalidate(ctx, market.ID); err != nil {
		s.logger.WarnContext(ctx, "snapshot invalidate failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}

	settlement := engine.Settle(market.PoolA, market.PoolB, market.Outcome, s.feePPM)
	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", market.ID),
		slog.String("outcome", string(market.Outcome)),
		slog.Int64("total_pool", settlement.Total),
		slog.Int64("fee", settlement.Fee),
		slog.Bool("refund", settlement.Refund),
	)

	confirmed, err := s.bets.ListByMarket(ctx, market.ID, domain.BetStatusConfirmed)
	if err != nil {
		return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
	}

	touchedSlips := make(map[string]struct{})
	for _, bet := range confirmed {
		if err := s.settleBet(ctx, market, bet, settlement); err != nil {
			return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
		}
		if bet.SlipID != "" {
			touchedSlips[bet.SlipID] = struct{}{}
		}
	}

	for slipID := range touchedSlips {
		if err := s.rollUpSlip(ctx, slipID); err != nil {
			return fmt.Errorf("settlement_service: resolve %s: %w", ev.MarketID, err)
		}
	}

	// Completion record: the resolution key lands only once every bet and
	// slip has settled. A crash anywhere above leaves the key absent, so
	// the oracle's redelivery re-runs the replay-safe steps and converges
	// instead of being dropped with work outstanding.
	payload, _ := json.Marshal(ev)
	if _, err := s.events.Insert(ctx, domain.SettlementEvent{
		Key:     key,
		Kind:    "resolution",
		Payload: payload,
	}); err != nil {
		s.logger.WarnContext(ctx, "resolution record failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, domain.SettlementNotice{
		Kind:     domain.NoticeMarketResolved,
		MarketID: market.ID,
		Outcome:  market.Outcome,
		Amount:   settlement.Total,
		At:       time.Now().UTC(),
	})
	s.auditMarket(ctx, market.ID, "market_resolved", map[string]any{
		"outcome":        string(market.Outcome),
		"resolution_ref": ev.ResolutionRef,
		"total_pool":     settlement.Total,
		"pool_after_fee": settlement.PoolAfterFee,
		"fee":            settlement.Fee,
		"bets_settled":   len(confirmed),
	})
	return nil
}

func (s *SettlementService) settleBet(ctx context.Context, market domain.Market, bet domain.Bet, settlement engine.Settlement) error {
	unlock, err := s.locks.AcquireWait(ctx, betLock(bet.ID), s.lockTTL)
	if err != nil {
		return err
	}
	defer unlock()

	bet, err = s.bets.GetByID(ctx, bet.ID)
	if err != nil {
		return err
	}
	if bet.Status != domain.BetStatusConfirmed {
		return nil
	}

	now := time.Now().UTC()
	bet.Result = settlement.ResultFor(bet.Side)
	bet.PayoutAmount = settlement.PayoutFor(bet.Side, bet.Stake)
	bet.SettledAt = &now
	if settlement.Outcome == domain.OutcomeVoid {
		bet.Status = domain.BetStatusVoidRefunded
	} else {
		bet.Status = domain.BetStatusSettled
	}
	if err := s.bets.Update(ctx, bet); err != nil {
		return err
	}

	// The status change above is the commit point; the key is a record of
	// it, not a gate in front of it.
	if _, err := s.events.Insert(ctx, domain.SettlementEvent{
		Key:  domain.SettleBetKey(bet.ID),
		Kind: "settle_bet",
	}); err != nil {
		s.logger.WarnContext(ctx, "settle record failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}

	s.recordHistory(ctx, market, bet, settlement, now)

	s.publish(ctx, domain.SettlementNotice{
		Kind:     domain.NoticeBetSettled,
		MarketID: bet.MarketID,
		BetID:    bet.ID,
		SlipID:   bet.SlipID,
		Outcome:  settlement.Outcome,
		Result:   bet.Result,
		Amount:   bet.PayoutAmount,
		At:       now,
	})

	detail, _ := json.Marshal(map[string]any{
		"result": string(bet.Result),
		"payout": bet.PayoutAmount,
		"stake":  bet.Stake,
	})
	if err := s.audit.Insert(ctx, domain.AuditEntry{
		EntityKind: "bet",
		EntityID:   bet.ID,
		Action:     "bet_settled",
		Detail:     detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit insert failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// recordHistory writes the structured historical row for a settled bet so
// the reporting surface covers live settlements alongside imported data.
func (s *SettlementService) recordHistory(ctx context.Context, market domain.Market, bet domain.Bet, settlement engine.Settlement, at time.Time) {
	settlementType := "decisive"
	if settlement.Outcome == domain.OutcomeVoid {
		settlementType = "void refund"
	} else if settlement.Refund {
		settlementType = "unopposed refund"
	}

	rec := domain.HistoryRecord{
		ID:             bet.ID,
		Kind:           "bet",
		Type:           string(bet.Result),
		SettlementType: settlementType,
		Unopposed:      settlement.Refund && settlement.Outcome != domain.OutcomeVoid,
		Side:           string(bet.Side),
		Outcome:        string(settlement.Outcome),
		Stake:          bet.Stake,
		Payout:         bet.PayoutAmount,
		MarketRef:      market.ID,
		Description:    market.Question,
		RecordedAt:     at,
	}
	if err := s.history.Insert(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "history insert failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}
}

// rollUpSlip recomputes a slip's aggregate once its legs move. The slip
// settles when every leg is final; a mix of refunded and decided legs lands
// in partially voided.
func (s *SettlementService) rollUpSlip(ctx context.Context, slipID string) error {
	unlock, err := s.locks.AcquireWait(ctx, slipLock(slipID), s.lockTTL)
	if err != nil {
		return err
	}
	defer unlock()

	slip, err := s.slips.GetByID(ctx, slipID)
	if err != nil {
		return err
	}
	if slip.Status != domain.SlipStatusConfirmed {
		return nil
	}

	legs, err := s.bets.ListBySlip(ctx, slipID)
	if err != nil {
		return err
	}

	var (
		total    int64
		refunded int
		decided  int
	)
	for _, bet := range legs {
		if !bet.Status.Final() {
			return nil // at least one leg still pending
		}
		total += bet.PayoutAmount
		switch bet.Status {
		case domain.BetStatusVoidRefunded:
			refunded++
		default:
			decided++
		}
	}

	now := time.Now().UTC()
	slip.TotalPayout = total
	slip.SettledAt = &now
	if refunded > 0 && decided > 0 {
		slip.Status = domain.SlipStatusPartiallyVoided
	} else {
		slip.Status = domain.SlipStatusSettled
	}
	if err := s.slips.Update(ctx, slip); err != nil {
		return err
	}

	if _, err := s.events.Insert(ctx, domain.SettlementEvent{
		Key:  domain.SettleSlipKey(slipID),
		Kind: "settle_slip",
	}); err != nil {
		s.logger.WarnContext(ctx, "settle record failed",
			slog.String("slip_id", slipID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, domain.SettlementNotice{
		Kind:   domain.NoticeSlipSettled,
		SlipID: slipID,
		Amount: total,
		At:     now,
	})

	detail, _ := json.Marshal(map[string]any{
		"status":       string(slip.Status),
		"total_payout": total,
		"legs":         len(legs),
	})
	if err := s.audit.Insert(ctx, domain.AuditEntry{
		EntityKind: "slip",
		EntityID:   slipID,
		Action:     "slip_settled",
		Detail:     detail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit insert failed",
			slog.String("slip_id", slipID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *SettlementService) publish(ctx context.Context, notice domain.SettlementNotice) {
	if err := s.bus.PublishNotice(ctx, notice); err != nil {
		s.logger.WarnContext(ctx, "notice publish failed",
			slog.String("kind", string(notice.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) auditMarket(ctx context.Context, marketID, action string, detail map[string]any) {
	payload, _ := json.Marshal(detail)
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
