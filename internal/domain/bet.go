package domain

import "time"

// BetStatus tracks the bet lifecycle.
type BetStatus string

const (
	BetStatusCreated         BetStatus = "created"
	BetStatusAwaitingDeposit BetStatus = "awaiting_deposit"
	BetStatusConfirmed       BetStatus = "confirmed"
	BetStatusSettled         BetStatus = "settled"
	BetStatusExpired         BetStatus = "expired"
	BetStatusVoidRefunded    BetStatus = "void_refunded"
)

// Final reports whether the status can no longer change.
func (s BetStatus) Final() bool {
	switch s {
	case BetStatusSettled, BetStatusExpired, BetStatusVoidRefunded:
		return true
	}
	return false
}

// BetResult is the settled outcome of a bet.
type BetResult string

const (
	BetResultWin    BetResult = "win"
	BetResultLoss   BetResult = "loss"
	BetResultRefund BetResult = "refund"
)

// Bet is a single stake on one side of one market. A bet contributes to its
// market's pool only once it reaches confirmed status, and exactly once.
type Bet struct {
	ID            string
	MarketID      string
	SlipID        string // empty for a standalone bet
	Side          Side
	Stake         int64 // smallest currency unit
	PayoutAddress string
	Status        BetStatus
	Result        BetResult // set once settled
	PayoutAmount  int64     // 0 for a loss

	// Funding target issued by the wallet service.
	FundingRef       string
	FundingAddress   string
	FundingExpiresAt *time.Time
	DepositTxRef     string // tx that confirmed the bet

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	SettledAt   *time.Time
}

// FundingDeadline returns the instant after which an unconfirmed bet
// expires: the earlier of the wallet target's TTL and the market close.
func (b Bet) FundingDeadline(marketCloses time.Time) time.Time {
	if b.FundingExpiresAt != nil && b.FundingExpiresAt.Before(marketCloses) {
		return *b.FundingExpiresAt
	}
	return marketCloses
}
