package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietbet/poolhouse/internal/domain"
)

const testFeePPM = 4000 // 0.4%

func TestSettle_DecisiveOutcome(t *testing.T) {
	// YES pool 10.00, NO pool 100.00, YES wins.
	s := Settle(1000, 10000, domain.OutcomeA, testFeePPM)

	assert.False(t, s.Refund)
	assert.Equal(t, domain.SideA, s.WinningSide)
	assert.Equal(t, int64(11000), s.Total)
	assert.Equal(t, int64(10956), s.PoolAfterFee)
	assert.Equal(t, int64(44), s.Fee)

	// The sole YES bettor takes the whole pool after fee.
	assert.Equal(t, int64(10956), s.PayoutFor(domain.SideA, 1000))
	assert.Equal(t, int64(0), s.PayoutFor(domain.SideB, 10000))
}

func TestSettle_ProRataSplit(t *testing.T) {
	// YES: Alice 50 + Bob 150. NO: Charlie 200 + Diana 100. NO wins.
	s := Settle(20000, 30000, domain.OutcomeB, testFeePPM)

	assert.False(t, s.Refund)
	assert.Equal(t, domain.SideB, s.WinningSide)
	assert.Equal(t, int64(49800), s.PoolAfterFee)

	charlie := s.PayoutFor(domain.SideB, 20000)
	diana := s.PayoutFor(domain.SideB, 10000)
	assert.Equal(t, int64(33200), charlie)
	assert.Equal(t, int64(16600), diana)
	assert.Equal(t, s.PoolAfterFee, charlie+diana)

	assert.Equal(t, int64(0), s.PayoutFor(domain.SideA, 5000))
	assert.Equal(t, int64(0), s.PayoutFor(domain.SideA, 15000))
}

func TestSettle_VoidRefundsEveryone(t *testing.T) {
	s := Settle(7000, 12000, domain.OutcomeVoid, testFeePPM)

	assert.True(t, s.Refund)
	assert.Equal(t, int64(0), s.Fee)
	assert.Equal(t, int64(7000), s.PayoutFor(domain.SideA, 7000))
	assert.Equal(t, int64(12000), s.PayoutFor(domain.SideB, 12000))
}

func TestSettle_UnopposedRefundsExactStakes(t *testing.T) {
	// Nobody staked NO, so a YES win pays nothing and charges nothing.
	s := Settle(5500, 0, domain.OutcomeA, testFeePPM)

	assert.True(t, s.Refund)
	assert.Equal(t, int64(0), s.Fee)
	assert.Equal(t, int64(1500), s.PayoutFor(domain.SideA, 1500))
	assert.Equal(t, int64(4000), s.PayoutFor(domain.SideA, 4000))
}

func TestSettle_UnopposedLosingSideEmpty(t *testing.T) {
	// The winning side is empty instead: still a refund for funded stakes.
	s := Settle(0, 9000, domain.OutcomeB, testFeePPM)

	assert.True(t, s.Refund)
	assert.Equal(t, int64(9000), s.PayoutFor(domain.SideB, 9000))
}

func TestSettle_UnopposedWinningSideEmpty(t *testing.T) {
	// The oracle picks the side nobody staked. The funded side cannot win
	// anything, so every stake comes back and no fee is charged.
	s := Settle(0, 9000, domain.OutcomeA, testFeePPM)

	assert.True(t, s.Refund)
	assert.Equal(t, int64(0), s.Fee)
	assert.Equal(t, int64(9000), s.PayoutFor(domain.SideB, 9000))
	assert.Equal(t, domain.BetResultRefund, s.ResultFor(domain.SideB))
}

func TestSettle_Deterministic(t *testing.T) {
	a := Settle(12345, 67890, domain.OutcomeB, testFeePPM)
	b := Settle(12345, 67890, domain.OutcomeB, testFeePPM)

	assert.Equal(t, a, b)
	assert.Equal(t, a.PayoutFor(domain.SideB, 4321), b.PayoutFor(domain.SideB, 4321))
}

func TestSettle_PoolConservation(t *testing.T) {
	// Payouts round down per bettor, so winners collectively never receive
	// more than the pool after fee. Dust stays behind.
	stakes := []int64{1, 3, 7, 33, 101, 997, 5000, 12007}
	var winning int64
	for _, st := range stakes {
		winning += st
	}
	losing := int64(41233)

	s := Settle(winning, losing, domain.OutcomeA, testFeePPM)
	assert.False(t, s.Refund)

	var paid int64
	for _, st := range stakes {
		paid += s.PayoutFor(domain.SideA, st)
	}
	assert.LessOrEqual(t, paid, s.PoolAfterFee)
	// Dust is bounded by one unit per winner.
	assert.GreaterOrEqual(t, paid, s.PoolAfterFee-int64(len(stakes)))
}

func TestSettle_LargePoolsNoOverflow(t *testing.T) {
	// stake * poolAfterFee would overflow int64 if computed naively.
	big := int64(4_000_000_000_000_000) // 4e15 units
	s := Settle(big, big, domain.OutcomeA, testFeePPM)

	payout := s.PayoutFor(domain.SideA, big)
	assert.Equal(t, s.PoolAfterFee, payout)
	assert.Greater(t, payout, big)
}

func TestSettle_ResultFor(t *testing.T) {
	s := Settle(100, 200, domain.OutcomeA, testFeePPM)
	assert.Equal(t, domain.BetResultWin, s.ResultFor(domain.SideA))
	assert.Equal(t, domain.BetResultLoss, s.ResultFor(domain.SideB))

	v := Settle(100, 200, domain.OutcomeVoid, testFeePPM)
	assert.Equal(t, domain.BetResultRefund, v.ResultFor(domain.SideA))
	assert.Equal(t, domain.BetResultRefund, v.ResultFor(domain.SideB))
}

func TestSettle_ZeroFee(t *testing.T) {
	s := Settle(1000, 1000, domain.OutcomeA, 0)
	assert.Equal(t, int64(2000), s.PoolAfterFee)
	assert.Equal(t, int64(0), s.Fee)
	assert.Equal(t, int64(2000), s.PayoutFor(domain.SideA, 1000))
}
