package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbet/poolhouse/internal/domain"
)

func draftSlip(t *testing.T, f *fixture) domain.Slip {
	t.Helper()
	slip, err := f.slipSvc.CreateSlip(context.Background(), "payout-addr")
	require.NoError(t, err)
	return slip
}

func TestAddLegRejectsDuplicateMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)

	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideB, 2000)
	require.ErrorIs(t, err, domain.ErrDuplicateMarket)
}

func TestAddLegRejectsClosedMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	require.NoError(t, f.markets.MarkClosed(ctx, "mkt-1"))
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.ErrorIs(t, err, domain.ErrMarketNotOpen)
}

func TestUpdateAndRemoveLeg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-2", domain.SideB, 2000)
	require.NoError(t, err)

	got, err := f.slipSvc.UpdateLegAmount(ctx, slip.ID, "mkt-1", 1500)
	require.NoError(t, err)
	leg, ok := got.LegFor("mkt-1")
	require.True(t, ok)
	assert.EqualValues(t, 1500, leg.Stake)

	got, err = f.slipSvc.RemoveLeg(ctx, slip.ID, "mkt-1")
	require.NoError(t, err)
	assert.Len(t, got.Legs, 1)
	assert.False(t, got.HasMarket("mkt-1"))

	_, err = f.slipSvc.RemoveLeg(ctx, slip.ID, "mkt-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUndoRestoresLastRemovedLeg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.RemoveLeg(ctx, slip.ID, "mkt-1")
	require.NoError(t, err)

	got, err := f.slipSvc.UndoRemove(ctx, slip.ID)
	require.NoError(t, err)
	leg, ok := got.LegFor("mkt-1")
	require.True(t, ok)
	assert.Equal(t, domain.SideA, leg.Side)
	assert.EqualValues(t, 1000, leg.Stake)

	// Nothing left to undo.
	_, err = f.slipSvc.UndoRemove(ctx, slip.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReorderLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	f.openMarket(t, "mkt-3", time.Hour)
	slip := draftSlip(t, f)

	for _, id := range []string{"mkt-1", "mkt-2", "mkt-3"} {
		_, err := f.slipSvc.AddLeg(ctx, slip.ID, id, domain.SideA, 1000)
		require.NoError(t, err)
	}

	got, err := f.slipSvc.ReorderLegs(ctx, slip.ID, []string{"mkt-3", "mkt-1", "mkt-2"})
	require.NoError(t, err)
	require.Len(t, got.Legs, 3)
	assert.Equal(t, "mkt-3", got.Legs[0].MarketID)
	assert.Equal(t, "mkt-1", got.Legs[1].MarketID)
	assert.Equal(t, "mkt-2", got.Legs[2].MarketID)

	_, err = f.slipSvc.ReorderLegs(ctx, slip.ID, []string{"mkt-3", "mkt-1"})
	require.Error(t, err)
	_, err = f.slipSvc.ReorderLegs(ctx, slip.ID, []string{"mkt-3", "mkt-1", "mkt-9"})
	require.Error(t, err)
}

func TestCheckoutConvertsAndFreezes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-2", domain.SideB, 2000)
	require.NoError(t, err)

	got, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusAwaitingDeposit, got.Status)
	assert.Equal(t, testCurrency, got.FundingCurrency)
	// Per-leg 2x conversion: 2000 + 4000 units.
	assert.EqualValues(t, 6000, got.FundingAmount)
	assert.EqualValues(t, 2000, got.Legs[0].Stake)
	assert.EqualValues(t, 4000, got.Legs[1].Stake)
	assert.NotEmpty(t, got.FundingRef)

	// Frozen: no further leg mutations.
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 100)
	require.ErrorIs(t, err, domain.ErrSlipFrozen)
	_, err = f.slipSvc.Checkout(ctx, slip.ID)
	require.ErrorIs(t, err, domain.ErrSlipFrozen)
}

func TestCheckoutEmptySlip(t *testing.T) {
	f := newFixture(t)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.Checkout(context.Background(), slip.ID)
	require.ErrorIs(t, err, domain.ErrEmptySlip)
}

func TestConfirmDepositBacksEveryLeg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-2", domain.SideB, 2000)
	require.NoError(t, err)
	frozen, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	ev := domain.DepositEvent{
		FundingRef: frozen.FundingRef,
		Amount:     frozen.FundingAmount,
		TxRef:      "tx-slip",
	}
	require.NoError(t, f.slipSvc.ConfirmDeposit(ctx, frozen, ev))

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusConfirmed, got.Status)

	legs, err := f.bets.ListBySlip(ctx, slip.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	for _, bet := range legs {
		assert.Equal(t, domain.BetStatusConfirmed, bet.Status)
		assert.Equal(t, "payout-addr", bet.PayoutAddress)
	}
	for _, leg := range got.Legs {
		assert.NotEmpty(t, leg.BetID)
	}

	m1, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2000, m1.PoolA)
	m2, err := f.markets.GetByID(ctx, "mkt-2")
	require.NoError(t, err)
	assert.EqualValues(t, 4000, m2.PoolB)

	// Replay: no duplicate bets, no double credit.
	require.NoError(t, f.slipSvc.ConfirmDeposit(ctx, got, ev))
	legs, err = f.bets.ListBySlip(ctx, slip.ID)
	require.NoError(t, err)
	assert.Len(t, legs, 2)
	m1, err = f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2000, m1.PoolA)
}

func TestConfirmDepositRedeliveryBacksRemainingLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-2", domain.SideB, 2000)
	require.NoError(t, err)
	frozen, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	ev := domain.DepositEvent{
		FundingRef: frozen.FundingRef,
		Amount:     frozen.FundingAmount,
		TxRef:      "tx-slip",
	}

	// The legs are backed but the slip's own status change fails. The
	// redelivered event must reuse the existing leg bets and credit
	// nothing twice.
	f.slips.failNextUpdate(errors.New("connection reset"))
	require.Error(t, f.slipSvc.ConfirmDeposit(ctx, frozen, ev))

	require.NoError(t, f.slipSvc.ConfirmDeposit(ctx, frozen, ev))

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusConfirmed, got.Status)
	for _, leg := range got.Legs {
		assert.NotEmpty(t, leg.BetID)
	}

	legs, err := f.bets.ListBySlip(ctx, slip.ID)
	require.NoError(t, err)
	assert.Len(t, legs, 2)

	m1, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2000, m1.PoolA)
	m2, err := f.markets.GetByID(ctx, "mkt-2")
	require.NoError(t, err)
	assert.EqualValues(t, 4000, m2.PoolB)
}

func TestConfirmDepositUnderfundedSlip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	frozen, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	err = f.slipSvc.ConfirmDeposit(ctx, frozen, domain.DepositEvent{
		FundingRef: frozen.FundingRef,
		Amount:     frozen.FundingAmount - 1,
		TxRef:      "tx-short",
	})
	require.ErrorIs(t, err, domain.ErrUnderfunded)

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusAwaitingDeposit, got.Status)

	legs, err := f.bets.ListBySlip(ctx, slip.ID)
	require.NoError(t, err)
	assert.Empty(t, legs)
}

func TestConfirmDepositRefundsLegWhoseMarketClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-2", domain.SideB, 2000)
	require.NoError(t, err)
	frozen, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	require.NoError(t, f.markets.MarkClosed(ctx, "mkt-2"))

	require.NoError(t, f.slipSvc.ConfirmDeposit(ctx, frozen, domain.DepositEvent{
		FundingRef: frozen.FundingRef,
		Amount:     frozen.FundingAmount,
		TxRef:      "tx-slip",
	}))

	legs, err := f.bets.ListBySlip(ctx, slip.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	for _, bet := range legs {
		switch bet.MarketID {
		case "mkt-1":
			assert.Equal(t, domain.BetStatusConfirmed, bet.Status)
		case "mkt-2":
			assert.Equal(t, domain.BetStatusVoidRefunded, bet.Status)
			assert.Equal(t, bet.Stake, bet.PayoutAmount)
		}
	}

	m2, err := f.markets.GetByID(ctx, "mkt-2")
	require.NoError(t, err)
	assert.Zero(t, m2.PoolB)
}

func TestPruneDraftsRemovesExactlyVoidedLeg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	f.openMarket(t, "mkt-3", time.Hour)
	slip := draftSlip(t, f)

	for _, id := range []string{"mkt-1", "mkt-2", "mkt-3"} {
		_, err := f.slipSvc.AddLeg(ctx, slip.ID, id, domain.SideA, 1000)
		require.NoError(t, err)
	}

	require.NoError(t, f.markets.MarkResolved(ctx, "mkt-2", domain.OutcomeVoid, "oracle-void"))

	pruned, err := f.slipSvc.PruneDrafts(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	require.Len(t, got.Legs, 2)
	assert.Equal(t, "mkt-1", got.Legs[0].MarketID)
	assert.Equal(t, "mkt-3", got.Legs[1].MarketID)
}

func TestPruneNeverTouchesFrozenSlips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	f.openMarket(t, "mkt-2", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	_, err = f.slipSvc.AddLeg(ctx, slip.ID, "mkt-2", domain.SideB, 2000)
	require.NoError(t, err)
	_, err = f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	require.NoError(t, f.markets.MarkResolved(ctx, "mkt-2", domain.OutcomeVoid, "oracle-void"))

	pruned, err := f.slipSvc.PruneDrafts(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, pruned)

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	assert.Len(t, got.Legs, 2)
}

func TestExpireOverdueSlips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	slip := draftSlip(t, f)

	_, err := f.slipSvc.AddLeg(ctx, slip.ID, "mkt-1", domain.SideA, 1000)
	require.NoError(t, err)
	frozen, err := f.slipSvc.Checkout(ctx, slip.ID)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Minute)
	frozen.FundingExpiresAt = &past
	require.NoError(t, f.slips.Update(ctx, frozen))

	expired, err := f.slipSvc.ExpireOverdue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.slips.GetByID(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlipStatusExpired, got.Status)
}
