package engine

import "github.com/quietbet/poolhouse/internal/domain"

// Settlement is the frozen arithmetic of one resolved market. PayoutFor
// applies it to individual stakes; the struct itself never changes once a
// market resolves.
type Settlement struct {
	Outcome      domain.Outcome
	Refund       bool // void or unopposed: every stake returned, no fee
	WinningSide  domain.Side
	WinningPool  int64
	Total        int64
	PoolAfterFee int64
	Fee          int64
}

// Settle computes the settlement for a resolved market. A void outcome, or
// a decisive outcome where either pool is zero (unopposed), refunds every
// funded stake with zero fee. Otherwise the fee comes off the total and
// winners split the remainder pro rata.
func Settle(poolA, poolB int64, outcome domain.Outcome, feePPM int64) Settlement {
	total := poolA + poolB
	s := Settlement{Outcome: outcome, Total: total}

	winner, decisive := outcome.WinningSide()
	if !decisive {
		s.Refund = true
		return s
	}

	s.WinningSide = winner
	if winner == domain.SideA {
		s.WinningPool = poolA
	} else {
		s.WinningPool = poolB
	}

	losingPool := total - s.WinningPool
	if losingPool == 0 || s.WinningPool == 0 {
		// Unopposed market, whichever side the oracle picked. With one
		// pool empty there is nothing to win and nothing to charge, so
		// every funded stake goes back.
		s.Refund = true
		return s
	}

	s.PoolAfterFee = applyFee(total, feePPM)
	s.Fee = total - s.PoolAfterFee
	return s
}

// PayoutFor returns the amount owed to one bettor. Refund settlements return
// the exact stake; winners get floor(stake * poolAfterFee / winningPool);
// losers get zero. Rounding dust stays in the pool, never owed out.
func (s Settlement) PayoutFor(side domain.Side, stake int64) int64 {
	if stake <= 0 {
		return 0
	}
	if s.Refund {
		return stake
	}
	if side != s.WinningSide || s.WinningPool == 0 {
		return 0
	}
	return floorMulDiv(stake, s.PoolAfterFee, s.WinningPool)
}

// ResultFor maps a side through the settlement to a bet result.
func (s Settlement) ResultFor(side domain.Side) domain.BetResult {
	if s.Refund {
		return domain.BetResultRefund
	}
	if side == s.WinningSide {
		return domain.BetResultWin
	}
	return domain.BetResultLoss
}
