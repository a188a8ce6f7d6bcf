// Package server provides the HTTP server for the appgen API: project
// endpoints, run control and the websocket and SSE subscription endpoints
// that receive pipeline events.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/runs"
	"github.com/agentstation/appgen/internal/server/cache"
	"github.com/agentstation/appgen/internal/server/events"
	"github.com/agentstation/appgen/internal/server/hub"
	"github.com/agentstation/appgen/internal/server/middleware"
	"github.com/agentstation/appgen/internal/server/sse"
	"github.com/agentstation/appgen/pkg/constants"
	appevents "github.com/agentstation/appgen/pkg/events"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app          application.Application
	orchestrator application.Orchestrator
	cache        *cache.Cache
	registry     *hub.Registry
	broadcaster  *hub.Broadcaster
	bus          *events.Bus
	runs         *runs.Controller
	stream       *sse.Stream
	upgrader     websocket.Upgrader
	logger       *zerolog.Logger
	config       Config
	startTime    time.Time
}

// New creates a new server instance with the given configuration. It wires
// the orchestrator's lifecycle hooks to the subscriber registry, so events
// flow as soon as New returns.
func New(app application.Application, cfg Config) (*Server, error) {
	logger := app.Logger()

	logger.Debug().Msg("Creating new server instance")

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = constants.CacheTTL
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = constants.MaxConcurrentRuns
	}

	orch, err := app.Orchestrator()
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.CacheTTL, constants.CacheCleanupInterval)

	registry := hub.NewRegistry(logger)
	broadcaster := hub.NewBroadcaster(registry, logger)

	// Status reads are cached; any event for a project makes its entry stale.
	bus := events.NewBus(broadcaster, logger, events.WithListener(func(ev appevents.Event) {
		if id, ok := ev.ProjectID(); ok {
			c.InvalidateProject(id)
		}
	}))

	logger.Debug().Msg("Attaching event bus to orchestrator hooks")
	if err := bus.Attach(orch); err != nil {
		return nil, err
	}

	controller := runs.NewController(orch, bus, logger, runs.WithMaxConcurrent(cfg.MaxConcurrentRuns))

	corsConfig := corsConfigFor(cfg)
	server := &Server{
		app:          app,
		orchestrator: orch,
		cache:        c,
		registry:     registry,
		broadcaster:  broadcaster,
		bus:          bus,
		runs:         controller,
		stream:       sse.NewStream(registry, orch, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.SocketBufferSize,
			WriteBufferSize: constants.SocketBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return !cfg.CORSEnabled || corsConfig.Allows(r.Header.Get("Origin"))
			},
		},
		logger:    logger,
		config:    cfg,
		startTime: time.Now(),
	}

	logger.Debug().
		Int("max_concurrent_runs", cfg.MaxConcurrentRuns).
		Msg("Server instance created successfully")
	return server, nil
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown cancels active runs and waits for them to wind down or for ctx
// to expire. Subscriber connections close with the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Int("active_runs", s.runs.Count()).Msg("Shutting down server background services")

	if err := s.runs.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Runs did not stop before shutdown deadline")
		return err
	}

	s.logger.Info().Msg("Background services shut down successfully")
	return nil
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Registry returns the subscriber registry.
func (s *Server) Registry() *hub.Registry {
	return s.registry
}

// Runs returns the run controller.
func (s *Server) Runs() *runs.Controller {
	return s.runs
}

// Bus returns the event bus attached to the orchestrator.
func (s *Server) Bus() *events.Bus {
	return s.bus
}

func corsConfigFor(cfg Config) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.CORSOrigins
		corsConfig.AllowAll = false
	} else {
		corsConfig.AllowAll = true
	}
	return corsConfig
}
