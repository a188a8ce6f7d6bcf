package handlers

import (
	"net/http"

	"github.com/agentstation/appgen/internal/server/response"
	"github.com/agentstation/appgen/pkg/logging"
)

// HandleHealth handles GET /health and GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "appgen-api",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready. The service is ready when the
// project store answers.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.orch.ListProjects(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("Project store not ready")
		response.ServiceUnavailable(w, "Project store not available")
		return
	}

	response.OK(w, map[string]any{
		"status":      "ready",
		"subscribers": h.registry.Total(),
		"active_runs": h.runs.Count(),
		"cache": map[string]any{
			"items": h.cache.ItemCount(),
		},
	})
}
