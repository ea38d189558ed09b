// Package engine holds the parimutuel arithmetic: implied odds, payout
// previews, and final settlement. Everything works in int64 smallest
// currency units with math/big intermediates and a single rounding step per
// amount. Amounts the system pays round down; amounts a user must send
// round up.
package engine

import "math/big"

// PPMDenominator scales fee rates expressed in parts per million.
const PPMDenominator int64 = 1_000_000

// Quote is the implied pricing of one side, derived purely from pool state.
type Quote struct {
	Pool        int64   `json:"pool"`
	Total       int64   `json:"total"`
	Decimal     float64 `json:"decimal"`     // total/pool; 0 when unbounded
	Probability float64 `json:"probability"` // pool/total; 0.5 display convention when the market is empty
	Unbounded   bool    `json:"unbounded"`   // nobody has staked this side
	Quotable    bool    `json:"quotable"`    // false when the market is empty
}

// ImpliedQuote prices one side from the two pool balances.
func ImpliedQuote(sidePool, otherPool int64) Quote {
	total := sidePool + otherPool
	q := Quote{
		Pool:     sidePool,
		Total:    total,
		Quotable: total > 0,
	}
	if total == 0 {
		q.Probability = 0.5
		q.Unbounded = true
		return q
	}
	if sidePool == 0 {
		q.Unbounded = true
		return q
	}
	q.Decimal = float64(total) / float64(sidePool)
	q.Probability = float64(sidePool) / float64(total)
	return q
}

// PotentialPayout previews what a stake would return if the market resolved
// right now with the given post-stake pools. It is recomputed live as pools
// move and is never a guarantee.
func PotentialPayout(stake, sideAfter, totalAfter, feePPM int64) int64 {
	if stake <= 0 || sideAfter <= 0 || totalAfter <= 0 {
		return 0
	}
	afterFee := applyFee(totalAfter, feePPM)
	return floorMulDiv(stake, afterFee, sideAfter)
}

// CeilDiv divides rounding up. Used for anything a user must send, so the
// deposit always covers the target amount.
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// applyFee returns floor(total * (1e6 - feePPM) / 1e6).
func applyFee(total, feePPM int64) int64 {
	keep := PPMDenominator - feePPM
	if keep < 0 {
		keep = 0
	}
	return floorMulDiv(total, keep, PPMDenominator)
}

// floorMulDiv returns floor(a*b/c) without int64 overflow in the product.
func floorMulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	n.Quo(n, big.NewInt(c))
	return n.Int64()
}
