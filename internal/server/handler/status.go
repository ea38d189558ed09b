package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (mode, settlement currency, fee)
// for dashboards and monitoring.
type StatusHandler struct {
	Mode      string
	Currency  string
	FeePPM    int64
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, currency string, feePPM int64, startedAt time.Time) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{Mode: mode, Currency: currency, FeePPM: feePPM, StartedAt: startedAt}
}

// GetStatus responds with the current backend mode and engine parameters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"currency":       h.Currency,
		"fee_ppm":        h.FeePPM,
		"uptime_seconds": uptime,
	})
}
