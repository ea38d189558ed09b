package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quietbet/poolhouse/internal/domain"
)

// DepositRouter directs a confirmed deposit to whichever entity owns its
// funding ref. A ref belongs to exactly one bet or one slip; a ref nothing
// claims is logged and dropped, since the wallet service may carry targets
// this instance never issued.
type DepositRouter struct {
	bets    domain.BetStore
	slips   domain.SlipStore
	betSvc  *BetService
	slipSvc *SlipService
	logger  *slog.Logger
}

// NewDepositRouter creates a DepositRouter.
func NewDepositRouter(bets domain.BetStore, slips domain.SlipStore, betSvc *BetService, slipSvc *SlipService, logger *slog.Logger) *DepositRouter {
	return &DepositRouter{
		bets:    bets,
		slips:   slips,
		betSvc:  betSvc,
		slipSvc: slipSvc,
		logger:  logger.With(slog.String("component", "deposit_router")),
	}
}

// Route applies a deposit event to its bet or slip.
func (r *DepositRouter) Route(ctx context.Context, ev domain.DepositEvent) error {
	if ev.FundingRef == "" || ev.TxRef == "" {
		return fmt.Errorf("deposit_router: malformed event: funding_ref=%q tx_ref=%q", ev.FundingRef, ev.TxRef)
	}

	bet, err := r.bets.GetByFundingRef(ctx, ev.FundingRef)
	switch {
	case err == nil:
		return r.betSvc.ConfirmDeposit(ctx, bet, ev)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("deposit_router: %s: %w", ev.FundingRef, err)
	}

	slip, err := r.slips.GetByFundingRef(ctx, ev.FundingRef)
	switch {
	case err == nil:
		return r.slipSvc.ConfirmDeposit(ctx, slip, ev)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("deposit_router: %s: %w", ev.FundingRef, err)
	}

	r.logger.WarnContext(ctx, "deposit for unknown funding ref dropped",
		slog.String("funding_ref", ev.FundingRef),
		slog.String("tx_ref", ev.TxRef),
	)
	return nil
}
