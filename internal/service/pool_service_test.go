package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietbet/poolhouse/internal/domain"
)

func TestCreateMarketDefaults(t *testing.T) {
	f := newFixture(t)

	m := f.openMarket(t, "mkt-1", time.Hour)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Equal(t, "YES", m.Labels[0])
	assert.Equal(t, "NO", m.Labels[1])
	assert.Zero(t, m.PoolA)
	assert.Zero(t, m.PoolB)
}

func TestCreditRejectsClosedMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	require.NoError(t, f.markets.MarkClosed(ctx, "mkt-1"))

	_, err := f.pools.Credit(ctx, "mkt-1", domain.SideA, 500, depositEvent("tx-1"))
	require.ErrorIs(t, err, domain.ErrMarketClosed)

	m, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Zero(t, m.PoolA)

	// The rejected credit moved no money, so its key stays unconsumed.
	seen, err := f.events.Seen(ctx, domain.DepositKey("tx-1"))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCreditRejectsPastCloseEvenIfStillOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", -time.Minute)

	_, err := f.pools.Credit(ctx, "mkt-1", domain.SideB, 500, depositEvent("tx-1"))
	require.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestCreditReplayedKeyLeavesPoolAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)

	credited, err := f.pools.Credit(ctx, "mkt-1", domain.SideA, 500, depositEvent("tx-1"))
	require.NoError(t, err)
	assert.True(t, credited)

	// Same key again: the stake must not enter twice.
	credited, err = f.pools.Credit(ctx, "mkt-1", domain.SideA, 500, depositEvent("tx-1"))
	require.NoError(t, err)
	assert.False(t, credited)

	m, err := f.markets.GetByID(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 500, m.PoolA)
}

func TestSnapshotBackfillsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)
	_, err := f.pools.Credit(ctx, "mkt-1", domain.SideA, 1000, depositEvent("tx-1"))
	require.NoError(t, err)

	snap, err := f.pools.Snapshot(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, snap.PoolA)

	// Cached now: a direct store change is invisible until invalidation.
	_, err = f.markets.CreditPoolOnce(ctx, "mkt-1", domain.SideB, 700, depositEvent("tx-2"))
	require.NoError(t, err)
	snap, err = f.pools.Snapshot(ctx, "mkt-1")
	require.NoError(t, err)
	assert.Zero(t, snap.PoolB)

	require.NoError(t, f.snapshots.Invalidate(ctx, "mkt-1"))
	snap, err = f.pools.Snapshot(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 700, snap.PoolB)
}

func TestCreditInvalidatesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "mkt-1", time.Hour)

	_, err := f.pools.Snapshot(ctx, "mkt-1")
	require.NoError(t, err)

	_, err = f.pools.Credit(ctx, "mkt-1", domain.SideA, 300, depositEvent("tx-1"))
	require.NoError(t, err)
	snap, err := f.pools.Snapshot(ctx, "mkt-1")
	require.NoError(t, err)
	assert.EqualValues(t, 300, snap.PoolA)
}

func TestQuotesEmptyMarket(t *testing.T) {
	f := newFixture(t)
	f.openMarket(t, "mkt-1", time.Hour)

	quotes, err := f.pools.Quotes(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.False(t, quotes.SideA.Quotable)
	assert.InDelta(t, 0.5, quotes.SideA.Probability, 1e-9)
	assert.EqualValues(t, testFeePPM, quotes.FeePPM)
}

func TestCloseDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openMarket(t, "due", -time.Minute)
	f.openMarket(t, "live", time.Hour)

	closed, err := f.pools.CloseDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	due, err := f.markets.GetByID(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, due.Status)

	live, err := f.markets.GetByID(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, live.Status)
}
