package handler

import (
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
)

// API view structs. Domain types stay free of wire tags; the shapes served
// over HTTP are defined here.

type marketView struct {
	ID              string              `json:"id"`
	Question        string              `json:"question"`
	Labels          [2]string           `json:"labels"`
	PoolA           int64               `json:"pool_a"`
	PoolB           int64               `json:"pool_b"`
	Total           int64               `json:"total"`
	BettingClosesAt time.Time           `json:"betting_closes_at"`
	ResolutionTime  time.Time           `json:"resolution_time,omitzero"`
	Status          domain.MarketStatus `json:"status"`
	Outcome         domain.Outcome      `json:"outcome,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func toMarketView(m domain.Market) marketView {
	return marketView{
		ID:              m.ID,
		Question:        m.Question,
		Labels:          m.Labels,
		PoolA:           m.PoolA,
		PoolB:           m.PoolB,
		Total:           m.Total(),
		BettingClosesAt: m.BettingClosesAt,
		ResolutionTime:  m.ResolutionTime,
		Status:          m.Status,
		Outcome:         m.Outcome,
		CreatedAt:       m.CreatedAt,
	}
}

// fundingView carries the deposit instructions issued by the wallet service.
type fundingView struct {
	Ref       string     `json:"ref"`
	Address   string     `json:"address"`
	Currency  string     `json:"currency,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type betView struct {
	ID            string           `json:"id"`
	MarketID      string           `json:"market_id"`
	SlipID        string           `json:"slip_id,omitempty"`
	Side          domain.Side      `json:"side"`
	Stake         int64            `json:"stake"`
	PayoutAddress string           `json:"payout_address"`
	Status        domain.BetStatus `json:"status"`
	Result        domain.BetResult `json:"result,omitempty"`
	PayoutAmount  int64            `json:"payout_amount"`
	Funding       *fundingView     `json:"funding,omitempty"`
	DepositTxRef  string           `json:"deposit_tx_ref,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ConfirmedAt   *time.Time       `json:"confirmed_at,omitempty"`
	SettledAt     *time.Time       `json:"settled_at,omitempty"`
}

func toBetView(b domain.Bet) betView {
	v := betView{
		ID:            b.ID,
		MarketID:      b.MarketID,
		SlipID:        b.SlipID,
		Side:          b.Side,
		Stake:         b.Stake,
		PayoutAddress: b.PayoutAddress,
		Status:        b.Status,
		Result:        b.Result,
		PayoutAmount:  b.PayoutAmount,
		DepositTxRef:  b.DepositTxRef,
		CreatedAt:     b.CreatedAt,
		ConfirmedAt:   b.ConfirmedAt,
		SettledAt:     b.SettledAt,
	}
	if b.FundingRef != "" {
		v.Funding = &fundingView{
			Ref:       b.FundingRef,
			Address:   b.FundingAddress,
			ExpiresAt: b.FundingExpiresAt,
		}
	}
	return v
}

type slipView struct {
	ID            string            `json:"id"`
	Status        domain.SlipStatus `json:"status"`
	Legs          []domain.SlipLeg  `json:"legs"`
	PayoutAddress string            `json:"payout_address"`
	TotalStake    int64             `json:"total_stake"`
	TotalPayout   int64             `json:"total_payout"`
	Funding       *fundingView      `json:"funding,omitempty"`
	DepositTxRef  string            `json:"deposit_tx_ref,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
}

func toSlipView(s domain.Slip) slipView {
	legs := s.Legs
	if legs == nil {
		legs = []domain.SlipLeg{}
	}
	v := slipView{
		ID:            s.ID,
		Status:        s.Status,
		Legs:          legs,
		PayoutAddress: s.PayoutAddress,
		TotalStake:    s.TotalStake(),
		TotalPayout:   s.TotalPayout,
		DepositTxRef:  s.DepositTxRef,
		CreatedAt:     s.CreatedAt,
		SettledAt:     s.SettledAt,
	}
	if s.FundingRef != "" {
		v.Funding = &fundingView{
			Ref:       s.FundingRef,
			Address:   s.FundingAddress,
			Currency:  s.FundingCurrency,
			Amount:    s.FundingAmount,
			ExpiresAt: s.FundingExpiresAt,
		}
	}
	return v
}
