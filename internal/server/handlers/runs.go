package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/appgen/internal/server/response"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/logging"
)

// RunRequest is the optional body of POST /api/v1/projects/{id}/run.
type RunRequest struct {
	Nodes []string `json:"nodes,omitempty"`
}

// HandleRunProject handles POST /api/v1/projects/{id}/run. The run is
// detached from the request; only scheduling failures reach the caller.
func (h *Handlers) HandleRunProject(w http.ResponseWriter, r *http.Request, projectID string) {
	ctx := logging.WithProject(r.Context(), projectID)

	var req RunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}

	if _, err := h.orch.ProjectStatus(r.Context(), projectID); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if err := h.orch.ValidateNodes(req.Nodes); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	handle, err := h.runs.StartRun(projectID, req.Nodes)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("Run not scheduled")
		response.ErrorFromType(w, err)
		return
	}

	logging.FromContext(logging.WithRun(ctx, handle.RunID)).Info().
		Strs("nodes", req.Nodes).
		Msg("Run scheduled")

	h.cache.InvalidateProject(projectID)
	response.Accepted(w, map[string]any{
		"status":     "started",
		"project_id": projectID,
		"run_id":     handle.RunID,
	})
}

// HandleCancelProject handles POST /api/v1/projects/{id}/cancel.
func (h *Handlers) HandleCancelProject(w http.ResponseWriter, _ *http.Request, projectID string) {
	if !h.runs.CancelRun(projectID) {
		response.BadRequest(w, "Project is not running", "No active run for project "+projectID)
		return
	}
	response.OK(w, map[string]any{
		"status":     "cancelled",
		"project_id": projectID,
	})
}

// HandleListRuns handles GET /api/v1/runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, _ *http.Request) {
	active := h.runs.List()
	response.OK(w, map[string]any{
		"runs":     active,
		"count":    len(active),
		"capacity": h.runs.Capacity(),
	})
}
