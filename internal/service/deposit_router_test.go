package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbet/poolhouse/internal/domain"
)

func TestRouteDepositToBet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)

	bet, err := f.betSvc.PlaceBet(ctx, "mkt-1", domain.SideA, 5000, "payout-addr")
	require.NoError(t, err)

	require.NoError(t, f.router.Route(ctx, domain.DepositEvent{
		FundingRef: bet.FundingRef,
		Amount:     bet.Stake,
		TxRef:      "tx-1",
	}))

	got, err := f.bets.GetByID(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusConfirmed, got.Status)
}

func TestRouteDepositToSlip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)

	slip, err := f.slipSvc.CreateSlip(ctx, "payout-addr")
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	frozen, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	require.NoError(t, f.router.Route(ctx, domain.DepositEvent{
		FundingRef: frozen.FundingRef,
		Amount:     frozen.FundingAmount,
		TxRef:      "tx-2",
	}))

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusConfirmed, got.Status)
}

func TestRouteUnknownRefDropped(t *testing.T) {
	f := newFixture(t)

	err := f.router.Route(context.Background(), domain.DepositEvent{
		FundingRef: "fund-nobody",
		Amount:     100,
		TxRef:      "tx-3",
	})
	require.NoError(t, err)
}

func TestRouteRejectsMalformedEvent(t *testing.T) {
	f := newFixture(t)

	err := f.router.Route(context.Background(), domain.DepositEvent{TxRef: "tx-4"})
	require.Error(t, err)
	err = f.router.Route(context.Background(), domain.DepositEvent{FundingRef: "fund-1"})
	require.Error(t, err)
}
