package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// dbPinger defines the minimal interface for DB health checks.
type dbPinger interface {
	Ping(ctx context.Context) error
}

// providerProber reports whether the advisor text provider is usable.
type providerProber interface {
	ProviderConfigured() bool
	CheckProvider(ctx context.Context) (bool, error)
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db       dbPinger
	provider providerProber
	version  string
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db dbPinger, provider providerProber, version string) *HealthHandler {
	return &HealthHandler{db: db, provider: provider, version: version}
}

// HealthResponse is the JSON response for /health and /ready.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus is the status of an individual component.
type CompStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
}

// Live is the liveness probe. Always returns 200.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready is the readiness probe. Pings DB: 200 if OK, 503 if not. The text
// provider does not gate readiness; the advisor serves fallback advice
// without it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "down",
			Timestamp: time.Now(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Health is the full health check. It probes the database and the advisor
// text provider with latency measurements. A dead database takes the service
// down (503); a dead provider only degrades it (200), since insights then
// come from the local fallback.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := make(map[string]CompStatus)
	overallStatus := "ok"

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		components["database"] = CompStatus{Status: "down"}
		overallStatus = "down"
	} else {
		components["database"] = CompStatus{
			Status:  "ok",
			Latency: time.Since(start).String(),
		}
	}

	components["provider"] = h.probeProvider(ctx)
	if overallStatus == "ok" && components["provider"].Status == "down" {
		overallStatus = "degraded"
	}

	status := http.StatusOK
	if overallStatus == "down" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Components: components,
		Timestamp:  time.Now(),
	})
}

func (h *HealthHandler) probeProvider(ctx context.Context) CompStatus {
	if !h.provider.ProviderConfigured() {
		return CompStatus{Status: "not_configured"}
	}

	start := time.Now()
	exists, err := h.provider.CheckProvider(ctx)
	if err != nil || !exists {
		return CompStatus{Status: "down"}
	}
	return CompStatus{
		Status:  "ok",
		Latency: time.Since(start).String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
