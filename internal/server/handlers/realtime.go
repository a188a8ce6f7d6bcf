package handlers

import (
	"net/http"

	ws "github.com/agentstation/appgen/internal/server/websocket"
	"github.com/agentstation/appgen/pkg/logging"
)

// HandleWebSocket handles /ws/projects/{id} and /api/v1/projects/{id}/ws.
// The connection is subscribed to the project's events until either side
// closes it. An unknown project is accepted; it simply has no snapshot.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request, projectID string) {
	log := logging.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn().Err(err).Str("project_id", projectID).Msg("WebSocket upgrade failed")
		return
	}

	session := ws.NewSession(projectID, conn, h.registry, h.orch, log, h.sessionOptions...)
	if err := session.Run(r.Context()); err != nil {
		log.Debug().Err(err).Str("project_id", projectID).Msg("WebSocket session ended")
	}
}

// HandleSSE handles GET /api/v1/projects/{id}/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request, projectID string) {
	h.stream.Serve(w, r, projectID)
}
