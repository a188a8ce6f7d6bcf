// Package handlers provides HTTP request handlers for the appgen API.
package handlers

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/runs"
	"github.com/agentstation/appgen/internal/server/cache"
	"github.com/agentstation/appgen/internal/server/events"
	"github.com/agentstation/appgen/internal/server/hub"
	"github.com/agentstation/appgen/internal/server/sse"
	ws "github.com/agentstation/appgen/internal/server/websocket"
)

// Deps are the server components the handlers read from and act on.
type Deps struct {
	Orchestrator   application.Orchestrator
	Cache          *cache.Cache
	Registry       *hub.Registry
	Bus            *events.Bus
	Runs           *runs.Controller
	Stream         *sse.Stream
	Upgrader       websocket.Upgrader
	SessionOptions []ws.SessionOption
	Logger         *zerolog.Logger
	StartTime      time.Time
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	orch           application.Orchestrator
	cache          *cache.Cache
	registry       *hub.Registry
	bus            *events.Bus
	runs           *runs.Controller
	stream         *sse.Stream
	upgrader       websocket.Upgrader
	sessionOptions []ws.SessionOption
	logger         *zerolog.Logger
	startTime      time.Time
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	if d.Logger == nil {
		nop := zerolog.Nop()
		d.Logger = &nop
	}
	if d.StartTime.IsZero() {
		d.StartTime = time.Now()
	}
	return &Handlers{
		orch:           d.Orchestrator,
		cache:          d.Cache,
		registry:       d.Registry,
		bus:            d.Bus,
		runs:           d.Runs,
		stream:         d.Stream,
		upgrader:       d.Upgrader,
		sessionOptions: d.SessionOptions,
		logger:         d.Logger,
		startTime:      d.StartTime,
	}
}
