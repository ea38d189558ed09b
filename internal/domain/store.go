package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets and their pool balances.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// CreditPoolOnce adds amount to one side's pool and records event in
	// the same transaction. It returns false without touching the pool when
	// event.Key was already recorded, so a redelivered deposit cannot enter
	// twice. Only open markets inside their betting window accept credits;
	// ErrMarketClosed rolls the whole transaction back, leaving the key
	// unconsumed.
	CreditPoolOnce(ctx context.Context, marketID string, side Side, amount int64, event SettlementEvent) (bool, error)
	MarkClosed(ctx context.Context, marketID string) error
	// MarkResolved freezes the pools and records the outcome. Returns
	// ErrAlreadyResolved when the market is already resolved.
	MarkResolved(ctx context.Context, marketID string, outcome Outcome, resolutionRef string) error
	// ListPastClose returns open markets whose betting window has passed.
	ListPastClose(ctx context.Context, now time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bets.
type BetStore interface {
	Create(ctx context.Context, bet Bet) error
	Update(ctx context.Context, bet Bet) error
	// Delete removes a bet outright. Only placement rollback uses it; a
	// funded bet is never deleted.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Bet, error)
	GetByFundingRef(ctx context.Context, fundingRef string) (Bet, error)
	ListByMarket(ctx context.Context, marketID string, status BetStatus) ([]Bet, error)
	ListBySlip(ctx context.Context, slipID string) ([]Bet, error)
	// ListAwaitingExpiry returns awaiting-deposit bets whose funding window
	// ended at or before now.
	ListAwaitingExpiry(ctx context.Context, now time.Time) ([]Bet, error)
	ListSettledBefore(ctx context.Context, before time.Time, opts ListOpts) ([]Bet, error)
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// SlipStore persists slips including their legs.
type SlipStore interface {
	Create(ctx context.Context, slip Slip) error
	Update(ctx context.Context, slip Slip) error
	GetByID(ctx context.Context, id string) (Slip, error)
	GetByFundingRef(ctx context.Context, fundingRef string) (Slip, error)
	ListByStatus(ctx context.Context, status SlipStatus, opts ListOpts) ([]Slip, error)
	Count(ctx context.Context) (int64, error)
}

// SettlementEventStore is the append-only idempotency log.
type SettlementEventStore interface {
	// Insert records the event; it returns false when the key was already
	// present, which callers treat as a replay.
	Insert(ctx context.Context, event SettlementEvent) (bool, error)
	Seen(ctx context.Context, key string) (bool, error)
	ListBefore(ctx context.Context, before time.Time, opts ListOpts) ([]SettlementEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// HistoryFilter narrows historical record queries.
type HistoryFilter struct {
	Kind   string
	Result Classification
	ListOpts
}

// HistoryStore persists imported historical payout records.
type HistoryStore interface {
	Insert(ctx context.Context, record HistoryRecord) error
	GetByID(ctx context.Context, id string) (HistoryRecord, error)
	List(ctx context.Context, opts ListOpts) ([]HistoryRecord, error)
	Count(ctx context.Context) (int64, error)
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	Insert(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, entityKind, entityID string, opts ListOpts) ([]AuditEntry, error)
}
