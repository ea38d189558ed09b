package domain

import "time"

// SlipStatus tracks the slip lifecycle. Legs are mutable only in draft.
type SlipStatus string

const (
	SlipStatusDraft           SlipStatus = "draft"
	SlipStatusAwaitingDeposit SlipStatus = "awaiting_deposit"
	SlipStatusConfirmed       SlipStatus = "confirmed"
	SlipStatusSettled         SlipStatus = "settled"
	SlipStatusPartiallyVoided SlipStatus = "partially_voided"
	SlipStatusExpired         SlipStatus = "expired"
)

// SlipLeg is one market+side+stake entry within a slip. Once the slip is
// confirmed the leg is backed by its own Bet and settles independently.
type SlipLeg struct {
	MarketID string `json:"market_id"`
	Side     Side   `json:"side"`
	Stake    int64  `json:"stake"`
	BetID    string `json:"bet_id,omitempty"` // set at confirmation
}

// Slip bundles independent bets on distinct markets behind a single funding
// step. It is not a parlay: each leg settles against its own market and the
// slip payout is the sum of leg results.
type Slip struct {
	ID            string
	Legs          []SlipLeg
	Status        SlipStatus
	PayoutAddress string

	FundingRef       string
	FundingAddress   string
	FundingCurrency  string
	FundingAmount    int64 // required deposit in the funding currency
	FundingExpiresAt *time.Time
	DepositTxRef     string

	TotalPayout int64 // sum of leg results once settled
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SettledAt   *time.Time
}

// TotalStake returns the sum of all leg stakes.
func (s Slip) TotalStake() int64 {
	var total int64
	for _, leg := range s.Legs {
		total += leg.Stake
	}
	return total
}

// LegFor returns the leg targeting marketID, if any.
func (s Slip) LegFor(marketID string) (SlipLeg, bool) {
	for _, leg := range s.Legs {
		if leg.MarketID == marketID {
			return leg, true
		}
	}
	return SlipLeg{}, false
}

// HasMarket reports whether a leg already targets marketID.
func (s Slip) HasMarket(marketID string) bool {
	_, ok := s.LegFor(marketID)
	return ok
}
