package domain

import "time"

// Side identifies one of the two outcomes bettors can stake on.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Outcome is the resolved result of a market. Void means no-contest,
// draw, or cancellation.
type Outcome string

const (
	OutcomeA    Outcome = "a"
	OutcomeB    Outcome = "b"
	OutcomeVoid Outcome = "void"
)

// WinningSide returns the side that won, or false for a void outcome.
func (o Outcome) WinningSide() (Side, bool) {
	switch o {
	case OutcomeA:
		return SideA, true
	case OutcomeB:
		return SideB, true
	default:
		return "", false
	}
}

// MarketStatus represents the lifecycle state of a market. Transitions are
// monotonic: open → closed → resolved, never backwards.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a binary-outcome question with one parimutuel pool per side.
// Pool balances are held in the smallest currency unit and only grow while
// the market is unresolved; they are frozen at resolution.
type Market struct {
	ID              string
	Question        string
	Labels          [2]string // display names for sides A and B, e.g. ["YES","NO"]
	PoolA           int64
	PoolB           int64
	BettingClosesAt time.Time
	ResolutionTime  time.Time
	Status          MarketStatus
	Outcome         Outcome // set once Status is resolved
	ResolutionRef   string  // oracle event id that resolved the market
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Pool returns the balance staked on the given side.
func (m Market) Pool(side Side) int64 {
	if side == SideA {
		return m.PoolA
	}
	return m.PoolB
}

// Total returns the combined stake across both sides.
func (m Market) Total() int64 {
	return m.PoolA + m.PoolB
}

// AcceptingBets reports whether a new stake may still enter the pools.
func (m Market) AcceptingBets(now time.Time) bool {
	return m.Status == MarketStatusOpen && now.Before(m.BettingClosesAt)
}

// Label returns the display name for a side.
func (m Market) Label(side Side) string {
	if side == SideA {
		return m.Labels[0]
	}
	return m.Labels[1]
}

// MarketSnapshot is the read-path view of a market's pool state. It is what
// the odds calculator and the API serve; it never drives settlement.
type MarketSnapshot struct {
	MarketID        string       `json:"market_id"`
	PoolA           int64        `json:"pool_a"`
	PoolB           int64        `json:"pool_b"`
	Status          MarketStatus `json:"status"`
	Outcome         Outcome      `json:"outcome,omitempty"`
	BettingClosesAt time.Time    `json:"betting_closes_at"`
	AsOf            time.Time    `json:"as_of"`
}
