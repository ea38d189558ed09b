package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
)

// AuditReader defines the audit-trail query the handler needs.
type AuditReader interface {
	List(ctx context.Context, entityKind, entityID string, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit-trail endpoint.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given store and logger.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

type auditEntryView struct {
	ID         int64           `json:"id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListAudit returns audit entries for an entity.
// GET /api/audit?entity_kind=bet&entity_id=...&limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityKind := q.Get("entity_kind")
	entityID := q.Get("entity_id")

	if entityKind == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "entity_kind and entity_id query parameters required")
		return
	}

	entries, err := h.audit.List(r.Context(), entityKind, entityID, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit entries", err)
		return
	}

	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{
			ID:         e.ID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			Action:     e.Action,
			Detail:     json.RawMessage(e.Detail),
			CreatedAt:  e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}
