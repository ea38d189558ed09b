package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quietbet/poolhouse/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps domain sentinel errors to HTTP status codes. It
// returns false when the error is not a known sentinel, in which case the
// caller logs it and answers 500.
func statusForError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found", true
	case errors.Is(err, domain.ErrInvalidStake):
		return http.StatusBadRequest, "invalid stake amount", true
	case errors.Is(err, domain.ErrEmptySlip):
		return http.StatusBadRequest, "slip has no legs", true
	case errors.Is(err, domain.ErrMarketClosed):
		return http.StatusConflict, "market closed", true
	case errors.Is(err, domain.ErrMarketNotOpen):
		return http.StatusConflict, "market not open", true
	case errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict, "market already resolved", true
	case errors.Is(err, domain.ErrDuplicateMarket):
		return http.StatusConflict, "slip already has a leg on this market", true
	case errors.Is(err, domain.ErrSlipFrozen):
		return http.StatusConflict, "slip is no longer mutable", true
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already exists", true
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, "funding window expired", true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", true
	}
	return 0, "", false
}

// writeServiceError answers a mapped domain error, or logs and answers 500
// for anything unexpected.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if status, msg, ok := statusForError(err); ok {
		writeError(w, status, msg)
		return
	}
	logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
