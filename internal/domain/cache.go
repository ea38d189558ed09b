package domain

import (
	"context"
	"time"
)

// LockManager serializes mutations per entity. Locks for unrelated entities
// never contend; there is no global lock. The returned unlock function is
// safe to call more than once.
type LockManager interface {
	// Acquire takes the named lock or returns ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
	// AcquireWait retries until the lock is taken or ctx ends.
	AcquireWait(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SnapshotCache keeps short-TTL pool snapshots for the read path.
type SnapshotCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	Get(ctx context.Context, marketID string) (MarketSnapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// SignalBus fans settlement notices out to subscribers (WS hub, notifier)
// and carries inbound resolution events between processes.
type SignalBus interface {
	PublishNotice(ctx context.Context, notice SettlementNotice) error
	SubscribeNotices(ctx context.Context) (<-chan SettlementNotice, error)
	PublishResolution(ctx context.Context, event ResolutionEvent) error
	SubscribeResolutions(ctx context.Context) (<-chan ResolutionEvent, error)
	Close() error
}
