package handlers

import (
	"net/http"
	"sort"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	health services.HealthService
}

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(health services.HealthService) *HealthHandlers {
	return &HealthHandlers{health: health}
}

type healthCheckResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

type healthResponse struct {
	Status      string                `json:"status"`
	Version     string                `json:"version,omitempty"`
	Environment string                `json:"environment,omitempty"`
	Uptime      string                `json:"uptime"`
	Timestamp   string                `json:"timestamp"`
	Checks      []healthCheckResponse `json:"checks,omitempty"`
}

// Healthz reports that the process is serving.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.health == nil {
		writeJSONResponse(w, http.StatusOK, healthResponse{Status: domain.HealthStatusOK})
		return
	}
	writeJSONResponse(w, http.StatusOK, newHealthResponse(h.health.Liveness(r.Context())))
}

// Readyz probes dependencies; an error status answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.health == nil {
		serviceUnavailable(r.Context(), w, "health")
		return
	}
	report, err := h.health.Readiness(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_unavailable", "readiness check failed", http.StatusServiceUnavailable))
		return
	}
	status := http.StatusOK
	if report.Status != domain.HealthStatusOK && report.Status != domain.HealthStatusDegraded {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, newHealthResponse(report))
}

func newHealthResponse(report services.HealthReport) healthResponse {
	resp := healthResponse{
		Status:      report.Status,
		Version:     report.Version,
		Environment: report.Environment,
		Uptime:      report.Uptime.String(),
		Timestamp:   formatTime(report.GeneratedAt),
	}
	for name, check := range report.Checks {
		resp.Checks = append(resp.Checks, healthCheckResponse{
			Name:      name,
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		})
	}
	sort.Slice(resp.Checks, func(i, j int) bool { return resp.Checks[i].Name < resp.Checks[j].Name })
	return resp
}
