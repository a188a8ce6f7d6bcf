package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/agentstation/appgen/internal/server/cache"
	"github.com/agentstation/appgen/internal/server/response"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/logging"
)

// CreateProjectRequest is the body of POST /api/v1/projects.
type CreateProjectRequest struct {
	Name         string `json:"name"`
	Requirements string `json:"requirements"`
}

// HandleListNodes handles GET /api/v1/nodes.
func (h *Handlers) HandleListNodes(w http.ResponseWriter, _ *http.Request) {
	if cached, ok := h.cache.Get(cache.NodesKey()); ok {
		response.OK(w, cached)
		return
	}

	nodes := h.orch.Nodes()
	data := map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	}
	h.cache.Set(cache.NodesKey(), data)
	response.OK(w, data)
}

// HandleCreateProject handles POST /api/v1/projects.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	body := http.MaxBytesReader(w, r.Body, constants.MaxRequirementsSize+4096)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}

	project, err := h.orch.CreateProject(r.Context(), req.Name, req.Requirements)
	if err != nil {
		logging.FromContext(r.Context()).Debug().Err(err).Msg("Create project failed")
		response.ErrorFromType(w, err)
		return
	}

	h.cache.Delete(cache.ProjectsKey())
	response.Created(w, project)
}

// HandleListProjects handles GET /api/v1/projects.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(cache.ProjectsKey()); ok {
		response.OK(w, cached)
		return
	}

	projects, err := h.orch.ListProjects(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("List projects failed")
		response.ErrorFromType(w, err)
		return
	}

	data := map[string]any{
		"projects": projects,
		"count":    len(projects),
	}
	h.cache.Set(cache.ProjectsKey(), data)
	response.OK(w, data)
}

// HandleGetProject handles GET /api/v1/projects/{id}.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request, projectID string) {
	key := cache.ProjectKey(projectID)
	if cached, ok := h.cache.Get(key); ok {
		response.OK(w, cached)
		return
	}

	project, err := h.orch.ProjectStatus(r.Context(), projectID)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	h.cache.Set(key, project)
	response.OK(w, project)
}

// HandleUploadRequirements handles POST /api/v1/upload-requirements. The
// multipart field "file" must hold UTF-8 text; its content is echoed back
// so a client can use it when creating a project.
func (h *Handlers) HandleUploadRequirements(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequirementsSize+64*1024)
	if err := r.ParseMultipartForm(constants.MaxRequirementsSize); err != nil {
		response.BadRequest(w, "Invalid multipart upload", err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "Missing file field", err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxRequirementsSize+1))
	if err != nil {
		response.ErrorFromType(w, errors.WrapIO("read", header.Filename, err))
		return
	}
	if len(data) > constants.MaxRequirementsSize {
		response.ErrorFromType(w, errors.NewValidationError("file", header.Filename, "requirements file is too large"))
		return
	}
	if !utf8.Valid(data) {
		response.ErrorFromType(w, errors.NewValidationError("file", header.Filename, "requirements file must be UTF-8 text"))
		return
	}

	logging.FromContext(r.Context()).Debug().
		Str("filename", header.Filename).
		Int("bytes", len(data)).
		Msg("Requirements uploaded")

	response.OK(w, map[string]any{
		"filename":     header.Filename,
		"requirements": strings.TrimSpace(string(data)),
	})
}
