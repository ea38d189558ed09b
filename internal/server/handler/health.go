package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a named dependency the health endpoint can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint. Probes are optional; with
// none registered the endpoint only reports liveness.
type HealthHandler struct {
	probes map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		probes: make(map[string]Pinger),
		logger: logger,
	}
}

// WithProbe registers a named dependency probe and returns the handler for
// chaining.
func (h *HealthHandler) WithProbe(name string, p Pinger) *HealthHandler {
	h.probes[name] = p
	return h
}

// HealthCheck responds with liveness plus the state of each registered
// dependency probe. Any failing probe turns the overall status degraded but
// the endpoint still answers 200; load balancers key off the body.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	deps := make(map[string]string, len(h.probes))

	for name, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			deps[name] = err.Error()
			h.logger.WarnContext(r.Context(), "health probe failed",
				slog.String("probe", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}

	writeJSON(w, http.StatusOK, body)
}
