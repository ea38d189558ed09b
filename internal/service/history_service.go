package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/quietbet/poolhouse/internal/domain"
	"github.com/quietbet/poolhouse/internal/reconcile"
)

// HistoryService imports historical payout records and serves their
// canonical classified form. Classification is pure and re-runnable, so
// records are stored raw and classified on read.
type HistoryService struct {
	history domain.HistoryStore
	logger  *slog.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(history domain.HistoryStore, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		history: history,
		logger:  logger.With(slog.String("component", "history_service")),
	}
}

// Import upserts raw historical records. Re-importing the same batch is
// harmless.
func (s *HistoryService) Import(ctx context.Context, records []domain.HistoryRecord) (int, error) {
	for i, rec := range records {
		if rec.ID == "" {
			return i, fmt.Errorf("history_service: import: record %d missing id", i)
		}
		if err := s.history.Insert(ctx, rec); err != nil {
			return i, fmt.Errorf("history_service: import %s: %w", rec.ID, err)
		}
	}
	return len(records), nil
}

// Get classifies and returns a single record.
func (s *HistoryService) Get(ctx context.Context, id string) (domain.ClassifiedRecord, error) {
	rec, err := s.history.GetByID(ctx, id)
	if err != nil {
		return domain.ClassifiedRecord{}, fmt.Errorf("history_service: get %q: %w", id, err)
	}
	return reconcile.Classify(rec), nil
}

// List returns classified records matching the filter. Kind and result
// filtering happens after classification so a result filter sees the
// canonical value, not the raw import text.
func (s *HistoryService) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.ClassifiedRecord, error) {
	raw, err := s.history.List(ctx, filter.ListOpts)
	if err != nil {
		return nil, fmt.Errorf("history_service: list: %w", err)
	}

	out := make([]domain.ClassifiedRecord, 0, len(raw))
	for _, rec := range raw {
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		classified := reconcile.Classify(rec)
		if filter.Result != "" && classified.Result != filter.Result {
			continue
		}
		out = append(out, classified)
	}
	return out, nil
}

// ReportSummary is the tail of a reconciliation report.
type ReportSummary struct {
	Records int64            `json:"records"`
	Counts  map[string]int64 `json:"counts"`
}

// WriteReport streams every classified record to w as JSON lines, followed
// by a summary line. Unknown classifications are counted, never dropped.
func (s *HistoryService) WriteReport(ctx context.Context, w io.Writer) (ReportSummary, error) {
	summary := ReportSummary{Counts: make(map[string]int64)}
	enc := json.NewEncoder(w)

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		page, err := s.history.List(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return summary, fmt.Errorf("history_service: report: %w", err)
		}
		for _, rec := range page {
			classified := reconcile.Classify(rec)
			if err := enc.Encode(classified); err != nil {
				return summary, fmt.Errorf("history_service: report: %w", err)
			}
			summary.Records++
			summary.Counts[string(classified.Result)]++
		}
		if len(page) < pageSize {
			break
		}
	}

	if err := enc.Encode(summary); err != nil {
		return summary, fmt.Errorf("history_service: report: %w", err)
	}
	s.logger.InfoContext(ctx, "reconciliation report written",
		slog.Int64("records", summary.Records),
		slog.Int64("unknown", summary.Counts[string(domain.ClassificationUnknown)]),
	)
	return summary, nil
}
