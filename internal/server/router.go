package server

import (
	"net/http"
	"strings"

	"github.com/agentstation/appgen/internal/server/handlers"
	"github.com/agentstation/appgen/internal/server/middleware"
	"github.com/agentstation/appgen/internal/server/response"
	ws "github.com/agentstation/appgen/internal/server/websocket"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(handlers.Deps{
		Orchestrator: s.orchestrator,
		Cache:        s.cache,
		Registry:     s.registry,
		Bus:          s.bus,
		Runs:         s.runs,
		Stream:       s.stream,
		Upgrader:     s.upgrader,
		SessionOptions: []ws.SessionOption{
			ws.WithPingPeriod(s.config.PingPeriod),
			ws.WithPongWait(s.config.PongWait),
		},
		Logger:    s.logger,
		StartTime: s.startTime,
	})

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/ready", h.HandleReady)

	mux.HandleFunc(prefix+"/nodes", method(http.MethodGet, h.HandleListNodes))
	mux.HandleFunc(prefix+"/runs", method(http.MethodGet, h.HandleListRuns))
	mux.HandleFunc(prefix+"/stats", method(http.MethodGet, h.HandleStats))
	mux.HandleFunc(prefix+"/upload-requirements", method(http.MethodPost, h.HandleUploadRequirements))

	mux.HandleFunc(prefix+"/projects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.HandleListProjects(w, r)
		case http.MethodPost:
			h.HandleCreateProject(w, r)
		default:
			response.MethodNotAllowed(w, r.Method)
		}
	})

	mux.HandleFunc(prefix+"/projects/", func(w http.ResponseWriter, r *http.Request) {
		parts := splitPath(strings.TrimPrefix(r.URL.Path, prefix+"/projects/"))

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			h.HandleGetProject(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "run" && r.Method == http.MethodPost:
			h.HandleRunProject(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
			h.HandleCancelProject(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "ws":
			h.HandleWebSocket(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "stream" && r.Method == http.MethodGet:
			h.HandleSSE(w, r, parts[0])
		case len(parts) == 0:
			response.BadRequest(w, "Project ID required", "")
		default:
			response.NotFound(w, "Not found", r.URL.Path)
		}
	})

	// Unprefixed websocket path kept for existing frontends.
	mux.HandleFunc("/ws/projects/", func(w http.ResponseWriter, r *http.Request) {
		projectID := extractPathParam(r.URL.Path, "/ws/projects/")
		if projectID == "" {
			response.BadRequest(w, "Project ID required", "")
			return
		}
		h.HandleWebSocket(w, r, projectID)
	})

	if s.config.MetricsEnabled {
		mux.HandleFunc("/metrics", h.HandleMetrics)
	}
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if cfg.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, s.logger)
		handler = middleware.RateLimit(rateLimiter)(handler)
	}

	// Authentication (if enabled)
	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.HeaderName = cfg.AuthHeader
		if cfg.APIKey != "" {
			authConfig.APIKey = cfg.APIKey
		}
		authConfig.PublicPaths = []string{"/health", cfg.PathPrefix + "/health", cfg.PathPrefix + "/ready"}
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		handler = middleware.CORS(corsConfigFor(cfg))(handler)
	}

	// Logging and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}

// method restricts a handler to one HTTP method.
func method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			response.MethodNotAllowed(w, r.Method)
			return
		}
		next(w, r)
	}
}

// extractPathParam extracts path parameter from URL.
func extractPathParam(path, prefix string) string {
	trimmed := strings.TrimPrefix(path, prefix)
	parts := strings.Split(trimmed, "/")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// splitPath splits a URL path into parts, removing empty strings.
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
