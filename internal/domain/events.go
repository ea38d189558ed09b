package domain

import (
	"fmt"
	"time"
)

// DepositEvent is emitted by the wallet service when a deposit to a funding
// target confirms on chain. The same TxRef may be redelivered.
type DepositEvent struct {
	FundingRef string    `json:"funding_ref"`
	Amount     int64     `json:"amount"`
	TxRef      string    `json:"tx_ref"`
	ObservedAt time.Time `json:"observed_at"`
}

// ResolutionEvent is emitted by the oracle service when a market's real-world
// outcome becomes known. The same ResolutionRef may be redelivered.
type ResolutionEvent struct {
	MarketID      string    `json:"market_id"`
	Outcome       Outcome   `json:"outcome"`
	ResolutionRef string    `json:"resolution_ref"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// SettlementEvent is one row of the append-only idempotency log. The first
// insert of a key wins; replays are observed via the unique key and dropped.
type SettlementEvent struct {
	Key       string
	Kind      string // "deposit", "resolution", "settle_bet", "settle_slip"
	Payload   []byte // JSON detail for audit and archive
	CreatedAt time.Time
}

// Idempotency keys for the settlement event log.

func DepositKey(txRef string) string {
	return "deposit:" + txRef
}

// DepositLegKey keys the pool entry of one slip leg, so a redelivered slip
// deposit re-credits only the legs a crashed run never reached.
func DepositLegKey(txRef, marketID string) string {
	return fmt.Sprintf("deposit:%s:leg:%s", txRef, marketID)
}

func ResolutionKey(marketID, resolutionRef string) string {
	return fmt.Sprintf("resolution:%s:%s", marketID, resolutionRef)
}

func SettleBetKey(betID string) string {
	return "settle_bet:" + betID
}

func SettleSlipKey(slipID string) string {
	return "settle_slip:" + slipID
}

// NoticeKind distinguishes events published on the signal bus.
type NoticeKind string

const (
	NoticeMarketResolved NoticeKind = "market_resolved"
	NoticeBetSettled     NoticeKind = "bet_settled"
	NoticeSlipSettled    NoticeKind = "slip_settled"
	NoticeError          NoticeKind = "error"
)

// SettlementNotice is the bus event fanned out to the WS hub and notifier
// after a resolution or settlement lands.
type SettlementNotice struct {
	Kind     NoticeKind `json:"kind"`
	MarketID string     `json:"market_id,omitempty"`
	BetID    string     `json:"bet_id,omitempty"`
	SlipID   string     `json:"slip_id,omitempty"`
	Outcome  Outcome    `json:"outcome,omitempty"`
	Result   BetResult  `json:"result,omitempty"`
	Amount   int64      `json:"amount,omitempty"`
	Message  string     `json:"message,omitempty"`
	At       time.Time  `json:"at"`
}

// AuditEntry records one state transition or settlement action.
type AuditEntry struct {
	ID         int64
	EntityKind string // "market", "bet", "slip"
	EntityID   string
	Action     string
	Detail     []byte // JSON
	CreatedAt  time.Time
}
