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

// BetService runs the standalone bet lifecycle: placement, funding,
// confirmation and expiry. Settlement of confirmed bets is the
// SettlementService's job.
type BetService struct {
	bets    domain.BetStore
	markets domain.MarketStore
	pools   *PoolService
	locks   domain.LockManager
	wallet  domain.WalletService
	rates   domain.RateService
	audit   domain.AuditStore

	currency   string
	fundingTTL time.Duration
	lockTTL    time.Duration
	logger     *slog.Logger
}

// NewBetService creates a BetService with all required dependencies.
func NewBetService(
	bets domain.BetStore,
	markets domain.MarketStore,
	pools *PoolService,
	locks domain.LockManager,
	wallet domain.WalletService,
	rates domain.RateService,
	audit domain.AuditStore,
	currency string,
	fundingTTL, lockTTL time.Duration,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		bets:       bets,
		markets:    markets,
		pools:      pools,
		locks:      locks,
		wallet:     wallet,
		rates:      rates,
		audit:      audit,
		currency:   currency,
		fundingTTL: fundingTTL,
		lockTTL:    lockTTL,
		logger:     logger.With(slog.String("component", "bet_service")),
	}
}

func betLock(id string) string { return "bet:" + id }

// PlaceBet creates a bet priced in USD cents, converts the stake to the pool
// currency and issues a funding target for it. The stake joins the pool only
// when the deposit confirms.
func (s *BetService) PlaceBet(ctx context.Context, marketID string, side domain.Side, stakeUSDCents int64, payoutAddress string) (domain.Bet, error) {
	if !side.Valid() {
		return domain.Bet{}, fmt.Errorf("bet_service: place: invalid side %q", side)
	}
	if stakeUSDCents <= 0 {
		return domain.Bet{}, fmt.Errorf("bet_service: place: %w", domain.ErrInvalidStake)
	}
	if payoutAddress == "" {
		return domain.Bet{}, fmt.Errorf("bet_service: place: missing payout address")
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place: %w", err)
	}
	if !market.AcceptingBets(time.Now().UTC()) {
		return domain.Bet{}, fmt.Errorf("bet_service: place on %s: %w", marketID, domain.ErrMarketClosed)
	}

	stake, err := s.rates.Convert(ctx, stakeUSDCents, s.currency)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place: convert stake: %w", err)
	}
	if stake <= 0 {
		return domain.Bet{}, fmt.Errorf("bet_service: place: %w", domain.ErrInvalidStake)
	}

	bet := domain.Bet{
		ID:            uuid.NewString(),
		MarketID:      marketID,
		Side:          side,
		Stake:         stake,
		PayoutAddress: payoutAddress,
		Status:        domain.BetStatusCreated,
	}
	if err := s.bets.Create(ctx, bet); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place: %w", err)
	}

	target, err := s.wallet.IssueFundingTarget(ctx, stake, s.currency)
	if err != nil {
		// Without a funding target nothing can ever fund this bet, so roll
		// the row back rather than stranding it in created. The caller
		// retries by placing again.
		s.logger.ErrorContext(ctx, "funding target issue failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
		if derr := s.bets.Delete(ctx, bet.ID); derr != nil {
			s.logger.WarnContext(ctx, "orphaned bet cleanup failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", derr.Error()),
			)
		}
		return domain.Bet{}, fmt.Errorf("bet_service: place: issue funding target: %w", err)
	}

	deadline := target.ExpiresAt
	if ttl := time.Now().UTC().Add(s.fundingTTL); ttl.Before(deadline) {
		deadline = ttl
	}
	if market.BettingClosesAt.Before(deadline) {
		deadline = market.BettingClosesAt
	}

	bet.Status = domain.BetStatusAwaitingDeposit
	bet.FundingRef = target.Ref
	bet.FundingAddress = target.Address
	bet.FundingExpiresAt = &deadline
	if err := s.bets.Update(ctx, bet); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place: %w", err)
	}

	s.auditLog(ctx, bet.ID, "bet_placed", map[string]any{
		"market_id":   marketID,
		"side":        string(side),
		"stake":       stake,
		"funding_ref": target.Ref,
	})
	return bet, nil
}

// GetBet retrieves a bet by ID.
func (s *BetService) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	bet, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get %q: %w", id, err)
	}
	return bet, nil
}

// ConfirmDeposit applies a wallet deposit event to the bet holding the
// funding ref. The pool credit records the deposit's idempotency key in the
// same store transaction, so a redelivered event can never enter the pool
// twice; a redelivery that finds the bet already confirmed is dropped, and
// one arriving after a crash mid-confirmation finishes the remaining steps.
// An underfunded deposit is recorded but leaves the bet awaiting.
func (s *BetService) ConfirmDeposit(ctx context.Context, bet domain.Bet, ev domain.DepositEvent) error {
	unlock, err := s.locks.AcquireWait(ctx, betLock(bet.ID), s.lockTTL)
	if err != nil {
		return fmt.Errorf("bet_service: confirm deposit %s: %w", ev.TxRef, err)
	}
	defer unlock()

	bet, err = s.bets.GetByID(ctx, bet.ID)
	if err != nil {
		return fmt.Errorf("bet_service: confirm deposit %s: %w", ev.TxRef, err)
	}
	if bet.Status != domain.BetStatusAwaitingDeposit {
		s.logger.InfoContext(ctx, "deposit replay dropped",
			slog.String("tx_ref", ev.TxRef),
			slog.String("bet_id", bet.ID),
			slog.String("status", string(bet.Status)),
		)
		return nil
	}

	if ev.Amount < bet.Stake {
		s.logger.WarnContext(ctx, "deposit underfunded",
			slog.String("bet_id", bet.ID),
			slog.Int64("expected", bet.Stake),
			slog.Int64("received", ev.Amount),
		)
		s.auditLog(ctx, bet.ID, "deposit_underfunded", map[string]any{
			"tx_ref":   ev.TxRef,
			"expected": bet.Stake,
			"received": ev.Amount,
		})
		return fmt.Errorf("bet_service: confirm deposit %s: %w", ev.TxRef, domain.ErrUnderfunded)
	}

	payload, _ := json.Marshal(ev)
	credited, err := s.pools.Credit(ctx, bet.MarketID, bet.Side, bet.Stake, domain.SettlementEvent{
		Key:     domain.DepositKey(ev.TxRef),
		Kind:    "deposit",
		Payload: payload,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMarketClosed) {
			// The window closed before the deposit landed; the stake never
			// entered the pool, so refund it in full.
			return s.refundUnentered(ctx, bet, ev.TxRef)
		}
		return fmt.Errorf("bet_service: confirm deposit %s: %w", ev.TxRef, err)
	}
	if !credited {
		// An earlier delivery credited the pool and crashed before the
		// status change; finish the confirmation it started.
		s.logger.InfoContext(ctx, "resuming interrupted deposit confirmation",
			slog.String("tx_ref", ev.TxRef),
			slog.String("bet_id", bet.ID),
		)
	}

	now := time.Now().UTC()
	bet.Status = domain.BetStatusConfirmed
	bet.DepositTxRef = ev.TxRef
	bet.ConfirmedAt = &now
	if err := s.bets.Update(ctx, bet); err != nil {
		return fmt.Errorf("bet_service: confirm deposit %s: %w", ev.TxRef, err)
	}

	s.auditLog(ctx, bet.ID, "bet_confirmed", map[string]any{
		"tx_ref": ev.TxRef,
		"stake":  bet.Stake,
	})
	return nil
}

func (s *BetService) refundUnentered(ctx context.Context, bet domain.Bet, txRef string) error {
	now := time.Now().UTC()
	bet.Status = domain.BetStatusVoidRefunded
	bet.Result = domain.BetResultRefund
	bet.PayoutAmount = bet.Stake
	bet.DepositTxRef = txRef
	bet.SettledAt = &now
	if err := s.bets.Update(ctx, bet); err != nil {
		return fmt.Errorf("bet_service: refund %s: %w", bet.ID, err)
	}
	s.auditLog(ctx, bet.ID, "bet_refunded_market_closed", map[string]any{
		"tx_ref": txRef,
		"refund": bet.Stake,
	})
	return nil
}

// ExpireOverdue moves awaiting-deposit bets past their funding deadline to
// expired. Returns the number of bets expired.
func (s *BetService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.bets.ListAwaitingExpiry(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("bet_service: expire overdue: %w", err)
	}

	expired := 0
	for _, bet := range due {
		unlock, err := s.locks.AcquireWait(ctx, betLock(bet.ID), s.lockTTL)
		if err != nil {
			return expired, fmt.Errorf("bet_service: expire %s: %w", bet.ID, err)
		}
		err = s.expireOne(ctx, bet.ID)
		unlock()
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *BetService) expireOne(ctx context.Context, betID string) error {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return fmt.Errorf("bet_service: expire %s: %w", betID, err)
	}
	if bet.Status != domain.BetStatusAwaitingDeposit {
		return nil
	}
	bet.Status = domain.BetStatusExpired
	if err := s.bets.Update(ctx, bet); err != nil {
		return fmt.Errorf("bet_service: expire %s: %w", betID, err)
	}
	s.auditLog(ctx, bet.ID, "bet_expired", nil)
	return nil
}

func (s *BetService) auditLog(ctx context.Context, betID, action string, detail map[string]any) {
	var payload []byte
	if detail != nil {
		payload, _ = json.Marshal(detail)
	}
	err := s.audit.Insert(ctx, domain.AuditEntry{
		EntityKind: "bet",
		EntityID:   betID,
		Action:     action,
		Detail:     payload,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit insert failed",
			slog.String("bet_id", betID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
