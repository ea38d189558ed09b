package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quietbet/poolhouse/internal/domain"
)

const defaultSnapshotTTL = 5 * time.Second

// SnapshotCache implements domain.SnapshotCache using JSON values with a
// short TTL. Pool snapshots go stale within seconds as stakes land, so the
// TTL is deliberately tight; settlement never reads this cache.
//
// Key schema:
//
//	snapshot:{marketID} - JSON-serialized MarketSnapshot
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client. A
// non-positive ttl falls back to the default.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(marketID string) string { return "snapshot:" + marketID }

// Set stores a market snapshot.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.MarketID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.MarketID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.MarketID, err)
	}
	return nil
}

// Get retrieves a market snapshot. It returns domain.ErrNotFound when the
// key does not exist or has expired.
func (sc *SnapshotCache) Get(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", marketID, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", marketID, err)
	}
	return snap, nil
}

// Invalidate removes a snapshot, forcing the next read through to the store.
func (sc *SnapshotCache) Invalidate(ctx context.Context, marketID string) error {
	if err := sc.rdb.Del(ctx, snapshotKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
