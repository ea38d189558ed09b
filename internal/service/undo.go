package service

import (
	"sync"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
)

const undoDepth = 8

type undoEntry struct {
	leg       domain.SlipLeg
	removedAt time.Time
}

// undoBuffer keeps recently removed draft legs per slip so a removal can be
// reversed within a short window without re-validating market state. Entries
// past the TTL are dropped lazily.
type undoBuffer struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string][]undoEntry
}

func newUndoBuffer(ttl time.Duration) *undoBuffer {
	return &undoBuffer{
		ttl: ttl,
		m:   make(map[string][]undoEntry),
	}
}

func (b *undoBuffer) push(slipID string, leg domain.SlipLeg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := append(b.m[slipID], undoEntry{leg: leg, removedAt: time.Now()})
	if len(entries) > undoDepth {
		entries = entries[len(entries)-undoDepth:]
	}
	b.m[slipID] = entries
}

// pop returns the most recently removed leg that is still within the TTL.
func (b *undoBuffer) pop(slipID string) (domain.SlipLeg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-b.ttl)
	entries := b.m[slipID]
	for len(entries) > 0 {
		last := entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		if last.removedAt.After(cutoff) {
			b.m[slipID] = entries
			return last.leg, true
		}
	}
	delete(b.m, slipID)
	return domain.SlipLeg{}, false
}

func (b *undoBuffer) drop(slipID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, slipID)
}
