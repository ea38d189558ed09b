package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietbet/poolhouse/internal/domain"
)

const (
	testFeePPM   = 4000
	testCurrency = "XMR"
)

type fixture struct {
	markets   *memMarkets
	bets      *memBets
	slips     *memSlips
	events    *memEvents
	history   *memHistory
	audit     *memAudit
	snapshots *memSnapshots
	bus       *memBus
	wallet    *fakeWallet

	pools   *PoolService
	betSvc  *BetService
	slipSvc *SlipService
	settle  *SettlementService
	router  *DepositRouter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events := newMemEvents()
	f := &fixture{
		markets:   newMemMarkets(events),
		bets:      newMemBets(),
		slips:     newMemSlips(),
		events:    events,
		history:   newMemHistory(),
		audit:     newMemAudit(),
		snapshots: newMemSnapshots(),
		bus:       newMemBus(),
		wallet:    &fakeWallet{},
	}

	locks := noopLocks{}
	lockTTL := 5 * time.Second

	f.pools = NewPoolService(f.markets, f.snapshots, locks, f.audit, testFeePPM, lockTTL, logger)
	f.betSvc = NewBetService(f.bets, f.markets, f.pools, locks, f.wallet, fakeRates{}, f.audit,
		testCurrency, time.Hour, lockTTL, logger)
	f.slipSvc = NewSlipService(f.slips, f.bets, f.markets, f.events, f.pools, locks, f.wallet, fakeRates{}, f.audit,
		testCurrency, time.Hour, time.Minute, lockTTL, logger)
	f.settle = NewSettlementService(f.markets, f.bets, f.slips, f.events, f.history, f.snapshots, locks, f.bus, f.audit,
		testFeePPM, lockTTL, logger)
	f.router = NewDepositRouter(f.bets, f.slips, f.betSvc, f.slipSvc, logger)
	return f
}

// depositEvent builds the idempotency event a wallet deposit would carry.
func depositEvent(txRef string) domain.SettlementEvent {
	return domain.SettlementEvent{Key: domain.DepositKey(txRef), Kind: "deposit"}
}

func (f *fixture) openMarket(t *testing.T, id string, closesIn time.Duration) domain.Market {
	t.Helper()
	now := time.Now().UTC()
	m, err := f.pools.CreateMarket(context.Background(), domain.Market{
		ID:              id,
		Question:        "Will it settle?",
		BettingClosesAt: now.Add(closesIn),
		ResolutionTime:  now.Add(closesIn + time.Hour),
	})
	require.NoError(t, err)
	return m
}

// confirmedBet seeds a confirmed bet and credits its pool, bypassing the
// funding flow.
func (f *fixture) confirmedBet(t *testing.T, id, marketID, slipID string, side domain.Side, stake int64) domain.Bet {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	bet := domain.Bet{
		ID:            id,
		MarketID:      marketID,
		SlipID:        slipID,
		Side:          side,
		Stake:         stake,
		PayoutAddress: "payout-" + id,
		Status:        domain.BetStatusConfirmed,
		ConfirmedAt:   &now,
	}
	require.NoError(t, f.bets.Create(ctx, bet))
	_, err := f.markets.CreditPoolOnce(ctx, marketID, side, stake, domain.SettlementEvent{
		Key:  "seed:" + id,
		Kind: "deposit",
	})
	require.NoError(t, err)
	return bet
}
