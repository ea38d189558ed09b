package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quietbet/poolhouse/internal/domain"
)

// SlipService aggregates independent bets behind one funding step. Leg
// stakes are quoted in USD cents while the slip is a draft; checkout
// converts them to the pool currency and freezes the slip. The service never
// touches pool balances itself: once the deposit confirms, every leg is
// handed to the bet lifecycle as its own confirmed bet.
type SlipService struct {
	slips   domain.SlipStore
	bets    domain.BetStore
	markets domain.MarketStore
	events  domain.SettlementEventStore
	pools   *PoolService
	locks   domain.LockManager
	wallet  domain.WalletService
	rates   domain.RateService
	audit   domain.AuditStore
	undo    *undoBuffer

	currency   string
	fundingTTL time.Duration
	lockTTL    time.Duration
	logger     *slog.Logger
}

// NewSlipService creates a SlipService with all required dependencies.
func NewSlipService(
	slips domain.SlipStore,
	bets domain.BetStore,
	markets domain.MarketStore,
	events domain.SettlementEventStore,
	pools *PoolService,
	locks domain.LockManager,
	wallet domain.WalletService,
	rates domain.RateService,
	audit domain.AuditStore,
	currency string,
	fundingTTL, undoTTL, lockTTL time.Duration,
	logger *slog.Logger,
) *SlipService {
	return &SlipService{
		slips:      slips,
		bets:       bets,
		markets:    markets,
		events:     events,
		pools:      pools,
		locks:      locks,
		wallet:     wallet,
		rates:      rates,
		audit:      audit,
		undo:       newUndoBuffer(undoTTL),
		currency:   currency,
		fundingTTL: fundingTTL,
		lockTTL:    lockTTL,
		logger:     logger.With(slog.String("component", "slip_service")),
	}
}

func slipLock(id string) string { return "slip:" + id }

// CreateSlip opens an empty draft slip.
func (s *SlipService) CreateSlip(ctx context.Context, payoutAddress string) (domain.Slip, error) {
	if payoutAddress == "" {
		return domain.Slip{}, fmt.Errorf("slip_service: create: missing payout address")
	}
	slip := domain.Slip{
		ID:            uuid.NewString(),
		Status:        domain.SlipStatusDraft,
		PayoutAddress: payoutAddress,
	}
	if err := s.slips.Create(ctx, slip); err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: create: %w", err)
	}
	s.auditLog(ctx, slip.ID, "slip_created", nil)
	return slip, nil
}

// GetSlip retrieves a slip by ID.
func (s *SlipService) GetSlip(ctx context.Context, id string) (domain.Slip, error) {
	slip, err := s.slips.GetByID(ctx, id)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: get %q: %w", id, err)
	}
	return slip, nil
}

// AddLeg appends a leg to a draft slip. A slip holds at most one leg per
// market, and the target market must still be open.
func (s *SlipService) AddLeg(ctx context.Context, slipID, marketID string, side domain.Side, stakeUSDCents int64) (domain.Slip, error) {
	if !side.Valid() {
		return domain.Slip{}, fmt.Errorf("slip_service: add leg: invalid side %q", side)
	}
	if stakeUSDCents <= 0 {
		return domain.Slip{}, fmt.Errorf("slip_service: add leg: %w", domain.ErrInvalidStake)
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: add leg: %w", err)
	}
	if !market.AcceptingBets(time.Now().UTC()) {
		return domain.Slip{}, fmt.Errorf("slip_service: add leg %s: %w", marketID, domain.ErrMarketNotOpen)
	}

	return s.mutateDraft(ctx, slipID, "leg_added", func(slip *domain.Slip) error {
		if slip.HasMarket(marketID) {
			return domain.ErrDuplicateMarket
		}
		slip.Legs = append(slip.Legs, domain.SlipLeg{
			MarketID: marketID,
			Side:     side,
			Stake:    stakeUSDCents,
		})
		return nil
	})
}

// UpdateLegAmount changes the stake of an existing draft leg.
func (s *SlipService) UpdateLegAmount(ctx context.Context, slipID, marketID string, stakeUSDCents int64) (domain.Slip, error) {
	if stakeUSDCents <= 0 {
		return domain.Slip{}, fmt.Errorf("slip_service: update leg: %w", domain.ErrInvalidStake)
	}
	return s.mutateDraft(ctx, slipID, "leg_updated", func(slip *domain.Slip) error {
		for i := range slip.Legs {
			if slip.Legs[i].MarketID == marketID {
				slip.Legs[i].Stake = stakeUSDCents
				return nil
			}
		}
		return domain.ErrNotFound
	})
}

// RemoveLeg deletes a draft leg and parks it in the undo buffer.
func (s *SlipService) RemoveLeg(ctx context.Context, slipID, marketID string) (domain.Slip, error) {
	return s.mutateDraft(ctx, slipID, "leg_removed", func(slip *domain.Slip) error {
		for i, leg := range slip.Legs {
			if leg.MarketID == marketID {
				slip.Legs = append(slip.Legs[:i], slip.Legs[i+1:]...)
				s.undo.push(slip.ID, leg)
				return nil
			}
		}
		return domain.ErrNotFound
	})
}

// UndoRemove re-inserts the most recently removed leg. The undo window is
// short so market state is not re-validated here.
func (s *SlipService) UndoRemove(ctx context.Context, slipID string) (domain.Slip, error) {
	return s.mutateDraft(ctx, slipID, "leg_restored", func(slip *domain.Slip) error {
		leg, ok := s.undo.pop(slip.ID)
		if !ok {
			return domain.ErrNotFound
		}
		if slip.HasMarket(leg.MarketID) {
			return domain.ErrDuplicateMarket
		}
		slip.Legs = append(slip.Legs, leg)
		return nil
	})
}

// ReorderLegs rearranges draft legs to the given market order. Every current
// leg must appear exactly once.
func (s *SlipService) ReorderLegs(ctx context.Context, slipID string, marketIDs []string) (domain.Slip, error) {
	return s.mutateDraft(ctx, slipID, "legs_reordered", func(slip *domain.Slip) error {
		if len(marketIDs) != len(slip.Legs) {
			return fmt.Errorf("order names %d legs, slip has %d", len(marketIDs), len(slip.Legs))
		}
		ordered := make([]domain.SlipLeg, 0, len(slip.Legs))
		for _, id := range marketIDs {
			leg, ok := slip.LegFor(id)
			if !ok {
				return fmt.Errorf("order names unknown market %q", id)
			}
			ordered = append(ordered, leg)
		}
		slip.Legs = ordered
		return nil
	})
}

// Checkout freezes a draft slip: leg stakes are converted to the pool
// currency and one funding target is issued for the total.
func (s *SlipService) Checkout(ctx context.Context, slipID string) (domain.Slip, error) {
	unlock, err := s.locks.AcquireWait(ctx, slipLock(slipID), s.lockTTL)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: %w", slipID, err)
	}
	defer unlock()

	slip, err := s.slips.GetByID(ctx, slipID)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: %w", slipID, err)
	}
	if slip.Status != domain.SlipStatusDraft {
		return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: %w", slipID, domain.ErrSlipFrozen)
	}
	if len(slip.Legs) == 0 {
		return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: %w", slipID, domain.ErrEmptySlip)
	}

	// Conversion happens per leg so each future bet carries a whole stake;
	// rounding up per leg keeps every pool entry fully funded.
	deadline := time.Now().UTC().Add(s.fundingTTL)
	var total int64
	for i := range slip.Legs {
		stake, err := s.rates.Convert(ctx, slip.Legs[i].Stake, s.currency)
		if err != nil {
			return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: convert leg %s: %w", slipID, slip.Legs[i].MarketID, err)
		}
		market, err := s.markets.GetByID(ctx, slip.Legs[i].MarketID)
		if err != nil {
			return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: %w", slipID, err)
		}
		if !market.AcceptingBets(time.Now().UTC()) {
			return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: leg %s: %w", slipID, market.ID, domain.ErrMarketNotOpen)
		}
		if market.BettingClosesAt.Before(deadline) {
			deadline = market.BettingClosesAt
		}
		slip.Legs[i].Stake = stake
		total += stake
	}

	target, err := s.wallet.IssueFundingTarget(ctx, total, s.currency)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: issue funding target: %w", slipID, err)
	}
	if target.ExpiresAt.Before(deadline) {
		deadline = target.ExpiresAt
	}

	slip.Status = domain.SlipStatusAwaitingDeposit
	slip.FundingRef = target.Ref
	slip.FundingAddress = target.Address
	slip.FundingCurrency = s.currency
	slip.FundingAmount = total
	slip.FundingExpiresAt = &deadline
	if err := s.slips.Update(ctx, slip); err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: checkout %s: %w", slipID, err)
	}
	s.undo.drop(slipID)

	s.auditLog(ctx, slipID, "slip_checked_out", map[string]any{
		"legs":        len(slip.Legs),
		"amount":      total,
		"currency":    s.currency,
		"funding_ref": target.Ref,
	})
	return slip, nil
}

// ConfirmDeposit applies a wallet deposit to a frozen slip: each leg becomes
// its own confirmed bet and enters its market's pool. Each leg's pool credit
// records a per-leg idempotency key in the same store transaction, so a
// redelivery after a mid-loop crash re-credits only the legs the crashed run
// never reached; a redelivery that finds the slip already confirmed is
// dropped.
func (s *SlipService) ConfirmDeposit(ctx context.Context, slip domain.Slip, ev domain.DepositEvent) error {
	unlock, err := s.locks.AcquireWait(ctx, slipLock(slip.ID), s.lockTTL)
	if err != nil {
		return fmt.Errorf("slip_service: confirm deposit %s: %w", ev.TxRef, err)
	}
	defer unlock()

	slip, err = s.slips.GetByID(ctx, slip.ID)
	if err != nil {
		return fmt.Errorf("slip_service: confirm deposit %s: %w", ev.TxRef, err)
	}
	if slip.Status != domain.SlipStatusAwaitingDeposit {
		s.logger.InfoContext(ctx, "deposit replay dropped",
			slog.String("tx_ref", ev.TxRef),
			slog.String("slip_id", slip.ID),
			slog.String("status", string(slip.Status)),
		)
		return nil
	}

	if ev.Amount < slip.FundingAmount {
		s.logger.WarnContext(ctx, "deposit underfunded",
			slog.String("slip_id", slip.ID),
			slog.Int64("expected", slip.FundingAmount),
			slog.Int64("received", ev.Amount),
		)
		s.auditLog(ctx, slip.ID, "deposit_underfunded", map[string]any{
			"tx_ref":   ev.TxRef,
			"expected": slip.FundingAmount,
			"received": ev.Amount,
		})
		return fmt.Errorf("slip_service: confirm deposit %s: %w", ev.TxRef, domain.ErrUnderfunded)
	}

	prior, err := s.bets.ListBySlip(ctx, slip.ID)
	if err != nil {
		return fmt.Errorf("slip_service: confirm deposit %s: %w", ev.TxRef, err)
	}
	backed := make(map[string]domain.Bet, len(prior))
	for _, b := range prior {
		backed[b.MarketID] = b
	}

	now := time.Now().UTC()
	for i := range slip.Legs {
		leg := slip.Legs[i]
		if b, ok := backed[leg.MarketID]; ok {
			// A crashed earlier delivery already backed this leg.
			slip.Legs[i].BetID = b.ID
			continue
		}
		bet, err := s.confirmLeg(ctx, slip, leg, ev.TxRef, now)
		if err != nil {
			return fmt.Errorf("slip_service: confirm deposit %s: leg %s: %w", ev.TxRef, leg.MarketID, err)
		}
		slip.Legs[i].BetID = bet.ID
	}

	slip.Status = domain.SlipStatusConfirmed
	slip.DepositTxRef = ev.TxRef
	if err := s.slips.Update(ctx, slip); err != nil {
		return fmt.Errorf("slip_service: confirm deposit %s: %w", ev.TxRef, err)
	}

	// Completion record: the deposit key lands only once the whole slip is
	// confirmed, so a redelivery before this point re-runs the replay-safe
	// steps above instead of being dropped.
	payload, _ := json.Marshal(ev)
	if _, err := s.events.Insert(ctx, domain.SettlementEvent{
		Key:     domain.DepositKey(ev.TxRef),
		Kind:    "deposit",
		Payload: payload,
	}); err != nil {
		s.logger.WarnContext(ctx, "deposit record failed",
			slog.String("tx_ref", ev.TxRef),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, slip.ID, "slip_confirmed", map[string]any{
		"tx_ref": ev.TxRef,
		"legs":   len(slip.Legs),
	})
	return nil
}

func (s *SlipService) confirmLeg(ctx context.Context, slip domain.Slip, leg domain.SlipLeg, txRef string, now time.Time) (domain.Bet, error) {
	bet := domain.Bet{
		ID:            uuid.NewString(),
		MarketID:      leg.MarketID,
		SlipID:        slip.ID,
		Side:          leg.Side,
		Stake:         leg.Stake,
		PayoutAddress: slip.PayoutAddress,
		Status:        domain.BetStatusConfirmed,
		FundingRef:    slip.FundingRef,
		DepositTxRef:  txRef,
		ConfirmedAt:   &now,
	}

	_, err := s.pools.Credit(ctx, leg.MarketID, leg.Side, leg.Stake, domain.SettlementEvent{
		Key:  domain.DepositLegKey(txRef, leg.MarketID),
		Kind: "deposit",
	})
	if err != nil {
		if !errors.Is(err, domain.ErrMarketClosed) {
			return domain.Bet{}, err
		}
		// The leg's market closed between checkout and deposit. The stake
		// never entered the pool, so the leg refunds in full.
		bet.Status = domain.BetStatusVoidRefunded
		bet.Result = domain.BetResultRefund
		bet.PayoutAmount = leg.Stake
		bet.SettledAt = &now
	}

	if err := s.bets.Create(ctx, bet); err != nil {
		return domain.Bet{}, err
	}
	return bet, nil
}

// PruneDrafts removes legs from draft slips whose market has resolved void
// or whose betting window has passed. Frozen slips are never pruned. Returns
// the number of legs removed.
func (s *SlipService) PruneDrafts(ctx context.Context, now time.Time) (int, error) {
	drafts, err := s.slips.ListByStatus(ctx, domain.SlipStatusDraft, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("slip_service: prune drafts: %w", err)
	}

	pruned := 0
	for _, slip := range drafts {
		n, err := s.pruneOne(ctx, slip.ID, now)
		if err != nil {
			return pruned, err
		}
		pruned += n
	}
	return pruned, nil
}

func (s *SlipService) pruneOne(ctx context.Context, slipID string, now time.Time) (int, error) {
	unlock, err := s.locks.AcquireWait(ctx, slipLock(slipID), s.lockTTL)
	if err != nil {
		return 0, fmt.Errorf("slip_service: prune %s: %w", slipID, err)
	}
	defer unlock()

	slip, err := s.slips.GetByID(ctx, slipID)
	if err != nil {
		return 0, fmt.Errorf("slip_service: prune %s: %w", slipID, err)
	}
	if slip.Status != domain.SlipStatusDraft {
		return 0, nil
	}

	kept := slip.Legs[:0]
	var removed []string
	for _, leg := range slip.Legs {
		market, err := s.markets.GetByID(ctx, leg.MarketID)
		if err != nil {
			return 0, fmt.Errorf("slip_service: prune %s: %w", slipID, err)
		}
		voided := market.Status == domain.MarketStatusResolved && market.Outcome == domain.OutcomeVoid
		if voided || !market.BettingClosesAt.After(now) {
			removed = append(removed, leg.MarketID)
			continue
		}
		kept = append(kept, leg)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	slip.Legs = kept
	if err := s.slips.Update(ctx, slip); err != nil {
		return 0, fmt.Errorf("slip_service: prune %s: %w", slipID, err)
	}
	s.auditLog(ctx, slipID, "legs_pruned", map[string]any{"markets": removed})
	return len(removed), nil
}

// ExpireOverdue moves awaiting-deposit slips past their funding deadline to
// expired.
func (s *SlipService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	awaiting, err := s.slips.ListByStatus(ctx, domain.SlipStatusAwaitingDeposit, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("slip_service: expire overdue: %w", err)
	}

	expired := 0
	for _, slip := range awaiting {
		if slip.FundingExpiresAt == nil || slip.FundingExpiresAt.After(now) {
			continue
		}
		unlock, err := s.locks.AcquireWait(ctx, slipLock(slip.ID), s.lockTTL)
		if err != nil {
			return expired, fmt.Errorf("slip_service: expire %s: %w", slip.ID, err)
		}
		err = s.expireOne(ctx, slip.ID)
		unlock()
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *SlipService) expireOne(ctx context.Context, slipID string) error {
	slip, err := s.slips.GetByID(ctx, slipID)
	if err != nil {
		return fmt.Errorf("slip_service: expire %s: %w", slipID, err)
	}
	if slip.Status != domain.SlipStatusAwaitingDeposit {
		return nil
	}
	slip.Status = domain.SlipStatusExpired
	if err := s.slips.Update(ctx, slip); err != nil {
		return fmt.Errorf("slip_service: expire %s: %w", slipID, err)
	}
	s.auditLog(ctx, slipID, "slip_expired", nil)
	return nil
}

func (s *SlipService) mutateDraft(ctx context.Context, slipID, action string, fn func(*domain.Slip) error) (domain.Slip, error) {
	unlock, err := s.locks.AcquireWait(ctx, slipLock(slipID), s.lockTTL)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: %s %s: %w", action, slipID, err)
	}
	defer unlock()

	slip, err := s.slips.GetByID(ctx, slipID)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: %s %s: %w", action, slipID, err)
	}
	if slip.Status != domain.SlipStatusDraft {
		return domain.Slip{}, fmt.Errorf("slip_service: %s %s: %w", action, slipID, domain.ErrSlipFrozen)
	}
	if err := fn(&slip); err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: %s %s: %w", action, slipID, err)
	}
	if err := s.slips.Update(ctx, slip); err != nil {
		return domain.Slip{}, fmt.Errorf("slip_service: %s %s: %w", action, slipID, err)
	}
	s.auditLog(ctx, slipID, action, nil)
	return slip, nil
}

func (s *SlipService) auditLog(ctx context.Context, slipID, action string, detail map[string]any) {
	var payload []byte
	if detail != nil {
		payload, _ = json.Marshal(detail)
	}
	err := s.audit.Insert(ctx, domain.AuditEntry{
		EntityKind: "slip",
		EntityID:   slipID,
		Action:     action,
		Detail:     payload,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit insert failed",
			slog.String("slip_id", slipID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
