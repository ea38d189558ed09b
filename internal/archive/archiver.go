// Package archive moves settled bets and consumed idempotency-log rows out
// of the hot database into object storage as JSON-line files.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// pageSize bounds how many rows one archive object holds.
	pageSize = 1000
)

// Archiver implements domain.Archiver against a blob writer. Rows are only
// deleted after their object upload succeeds, so a failed run leaves the
// database intact and the next run re-exports.
type Archiver struct {
	bets   domain.BetStore
	events domain.SettlementEventStore
	blobs  domain.BlobWriter
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(bets domain.BetStore, events domain.SettlementEventStore, blobs domain.BlobWriter, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		bets:   bets,
		events: events,
		blobs:  blobs,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

type archivedBet struct {
	ID           string           `json:"id"`
	MarketID     string           `json:"market_id"`
	SlipID       string           `json:"slip_id,omitempty"`
	Side         domain.Side      `json:"side"`
	Stake        int64            `json:"stake"`
	Status       domain.BetStatus `json:"status"`
	Result       domain.BetResult `json:"result,omitempty"`
	PayoutAmount int64            `json:"payout_amount"`
	DepositTxRef string           `json:"deposit_tx_ref,omitempty"`
	SettledAt    *time.Time       `json:"settled_at,omitempty"`
}

// ArchiveBets exports bets settled before the cutoff and deletes them from
// the database. Returns the number of rows archived.
func (a *Archiver) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	var total int64
	for offset := 0; ; offset += pageSize {
		page, err := a.bets.ListSettledBefore(ctx, before, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("archive: list settled bets: %w", err)
		}
		for _, bet := range page {
			row := archivedBet{
				ID:           bet.ID,
				MarketID:     bet.MarketID,
				SlipID:       bet.SlipID,
				Side:         bet.Side,
				Stake:        bet.Stake,
				Status:       bet.Status,
				Result:       bet.Result,
				PayoutAmount: bet.PayoutAmount,
				DepositTxRef: bet.DepositTxRef,
				SettledAt:    bet.SettledAt,
			}
			if err := enc.Encode(row); err != nil {
				return 0, fmt.Errorf("archive: encode bet %s: %w", bet.ID, err)
			}
			total++
		}
		if len(page) < pageSize {
			break
		}
	}
	if total == 0 {
		return 0, nil
	}

	path := objectPath("bets", before)
	if err := a.blobs.Put(ctx, path, &buf, contentTypeJSONL); err != nil {
		return 0, fmt.Errorf("archive: upload %s: %w", path, err)
	}

	deleted, err := a.bets.DeleteSettledBefore(ctx, before)
	if err != nil {
		return total, fmt.Errorf("archive: delete settled bets: %w", err)
	}

	a.logger.InfoContext(ctx, "bets archived",
		slog.String("path", path),
		slog.Int64("exported", total),
		slog.Int64("deleted", deleted),
	)
	a.auditLog(ctx, path, "bets_archived", total)
	return total, nil
}

// ArchiveSettlementEvents exports idempotency-log rows created before the
// cutoff and deletes them. The cutoff must be far past any plausible
// redelivery window, or replays would stop being detected.
func (a *Archiver) ArchiveSettlementEvents(ctx context.Context, before time.Time) (int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	var total int64
	for offset := 0; ; offset += pageSize {
		page, err := a.events.ListBefore(ctx, before, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("archive: list settlement events: %w", err)
		}
		for _, ev := range page {
			if err := enc.Encode(map[string]any{
				"key":        ev.Key,
				"kind":       ev.Kind,
				"payload":    json.RawMessage(ev.Payload),
				"created_at": ev.CreatedAt,
			}); err != nil {
				return 0, fmt.Errorf("archive: encode event %s: %w", ev.Key, err)
			}
			total++
		}
		if len(page) < pageSize {
			break
		}
	}
	if total == 0 {
		return 0, nil
	}

	path := objectPath("settlement_events", before)
	if err := a.blobs.Put(ctx, path, &buf, contentTypeJSONL); err != nil {
		return 0, fmt.Errorf("archive: upload %s: %w", path, err)
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		return total, fmt.Errorf("archive: delete settlement events: %w", err)
	}

	a.logger.InfoContext(ctx, "settlement events archived",
		slog.String("path", path),
		slog.Int64("exported", total),
		slog.Int64("deleted", deleted),
	)
	a.auditLog(ctx, path, "settlement_events_archived", total)
	return total, nil
}

func objectPath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("20060102T150405Z"))
}

func (a *Archiver) auditLog(ctx context.Context, path, action string, rows int64) {
	detail, _ := json.Marshal(map[string]any{"rows": rows})
	err := a.audit.Insert(ctx, domain.AuditEntry{
		EntityKind: "archive",
		EntityID:   path,
		Action:     action,
		Detail:     detail,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "audit insert failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
