package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quietbet/poolhouse/internal/domain"
)

// HistoryService defines the methods that the settlement-history handler
// requires from the service layer.
type HistoryService interface {
	Get(ctx context.Context, id string) (domain.ClassifiedRecord, error)
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.ClassifiedRecord, error)
}

// HistoryHandler serves classified settlement-history endpoints.
type HistoryHandler struct {
	history HistoryService
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(history HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  logger,
	}
}

// listSettlementsResponse wraps the list endpoint output.
type listSettlementsResponse struct {
	Records []domain.ClassifiedRecord `json:"records"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

// ListSettlements returns classified historical records, optionally filtered
// by kind (bet, slip) or result (win, loss, refund, unknown).
// GET /api/settlements?kind=bet&result=win&limit=50&offset=0
func (h *HistoryHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.HistoryFilter{
		Kind:     q.Get("kind"),
		Result:   domain.Classification(q.Get("result")),
		ListOpts: parseListOpts(r),
	}

	records, err := h.history.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "list settlements", err)
		return
	}

	if records == nil {
		records = []domain.ClassifiedRecord{}
	}

	writeJSON(w, http.StatusOK, listSettlementsResponse{
		Records: records,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// GetSettlement returns one classified record by its ID.
// GET /api/settlements/{id}
func (h *HistoryHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing record id")
		return
	}

	record, err := h.history.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get settlement", err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}
