package handlers

import (
	"context"
	"net/http"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsSource exposes counters for the metrics endpoint
type MetricsSource interface {
	Snapshot() map[string]int64
}

// StatusHandler serves health and metrics
type StatusHandler struct {
	backend string
	pinger  Pinger
	metrics MetricsSource
}

// NewStatusHandler creates a status handler. pinger may be nil.
func NewStatusHandler(backend string, pinger Pinger, metrics MetricsSource) *StatusHandler {
	return &StatusHandler{
		backend: backend,
		pinger:  pinger,
		metrics: metrics,
	}
}

// HandleHealth handles GET /health
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"storage": h.backend,
				"error":   err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"storage": h.backend,
	})
}

// HandleMetrics handles GET /metrics
func (h *StatusHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]int64{})
		return
	}
	respondJSON(w, http.StatusOK, h.metrics.Snapshot())
}
