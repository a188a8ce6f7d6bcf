// Package sse serves project subscriptions as Server-Sent Events. It shares
// the connection registry with the WebSocket transport, so a broadcast
// reaches both kinds of subscriber.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/internal/server/hub"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// Snapshotter provides the status message a new subscriber receives.
type Snapshotter interface {
	StatusSnapshot(ctx context.Context, projectID string) (events.Envelope, error)
}

// Stream serves SSE subscriptions.
type Stream struct {
	registry    *hub.Registry
	snapshotter Snapshotter
	logger      *zerolog.Logger
	keepalive   time.Duration
}

// NewStream creates an SSE endpoint over registry. snapshotter may be nil.
func NewStream(registry *hub.Registry, snapshotter Snapshotter, logger *zerolog.Logger) *Stream {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Stream{
		registry:    registry,
		snapshotter: snapshotter,
		logger:      logger,
		keepalive:   constants.PingPeriod,
	}
}

// Serve streams events for projectID until the client goes away or a
// delivery fails.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request, projectID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := newConn(w, flusher)
	log := s.logger.With().Str("project_id", projectID).Str("conn_id", conn.ID()).Logger()

	s.registry.Register(projectID, conn)
	defer func() {
		s.registry.Unregister(projectID, conn)
		_ = conn.Close()
		log.Debug().Msg("SSE subscription closed")
	}()

	if s.snapshotter != nil {
		if env, err := s.snapshotter.StatusSnapshot(r.Context(), projectID); err == nil {
			_ = conn.Send(env)
		} else if !errors.IsNotFound(err) {
			log.Warn().Err(err).Msg("Initial status unavailable")
		}
	}

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.comment("ping"); err != nil {
				return
			}
		}
	}
}

// conn adapts an SSE response to hub.Conn.
type conn struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newConn(w http.ResponseWriter, flusher http.Flusher) *conn {
	return &conn{
		id:      uuid.NewString(),
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		done:    make(chan struct{}),
	}
}

func (c *conn) ID() string {
	return c.id
}

// Send writes v as one SSE event. Envelopes use their type as event name.
func (c *conn) Send(v any) error {
	name := ""
	if env, ok := v.(events.Envelope); ok {
		name = env.Type.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapParse("json", "", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrClosed
	}
	_ = c.rc.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	if name != "" {
		if _, err := fmt.Fprintf(c.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *conn) comment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrClosed
	}
	_ = c.rc.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	if _, err := fmt.Fprintf(c.w, ": %s\n\n", text); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close stops further writes and releases the serving handler.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}
