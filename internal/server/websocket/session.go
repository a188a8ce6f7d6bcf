package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/internal/server/hub"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// State is a session lifecycle state.
type State int32

// Session states.
const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Snapshotter provides the status message a new subscriber receives.
type Snapshotter interface {
	StatusSnapshot(ctx context.Context, projectID string) (events.Envelope, error)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPingPeriod overrides how often ping control frames are sent.
func WithPingPeriod(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.pingPeriod = d
		}
	}
}

// WithPongWait overrides how long the session waits for any inbound frame.
func WithPongWait(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.pongWait = d
		}
	}
}

// Session is one subscriber's connection to a project's event stream.
type Session struct {
	projectID   string
	conn        *Conn
	registry    *hub.Registry
	snapshotter Snapshotter
	logger      zerolog.Logger

	pingPeriod time.Duration
	pongWait   time.Duration

	state atomic.Int32
	pings atomic.Int64
}

// NewSession creates a session for projectID over transport. snapshotter
// may be nil, in which case no initial status is sent.
func NewSession(projectID string, transport Transport, registry *hub.Registry, snapshotter Snapshotter, logger *zerolog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	conn := NewConn(transport)
	s := &Session{
		projectID:   projectID,
		conn:        conn,
		registry:    registry,
		snapshotter: snapshotter,
		logger:      logger.With().Str("project_id", projectID).Str("conn_id", conn.ID()).Logger(),
		pingPeriod:  constants.PingPeriod,
		pongWait:    constants.PongWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Conn returns the session's connection.
func (s *Session) Conn() *Conn {
	return s.conn
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Pings returns how many liveness probes were answered.
func (s *Session) Pings() int64 {
	return s.pings.Load()
}

// Run registers the connection, sends the initial snapshot and serves
// inbound messages until the transport fails or ctx is cancelled. The
// connection is unregistered on every exit path.
func (s *Session) Run(ctx context.Context) error {
	s.registry.Register(s.projectID, s.conn)
	defer func() {
		s.registry.Unregister(s.projectID, s.conn)
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		s.logger.Debug().Int64("pings", s.Pings()).Msg("Subscription closed")
	}()

	s.sendSnapshot(ctx)
	s.state.Store(int32(StateOpen))
	s.logger.Debug().Msg("Subscription open")

	stop := make(chan struct{})
	defer close(stop)
	go s.keepalive(ctx, stop)

	return s.readLoop()
}

func (s *Session) sendSnapshot(ctx context.Context) {
	if s.snapshotter == nil {
		return
	}
	env, err := s.snapshotter.StatusSnapshot(ctx, s.projectID)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.logger.Warn().Err(err).Msg("Initial status unavailable")
		}
		return
	}
	if err := s.conn.Send(env); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send initial status")
	}
}

// keepalive sends ping frames and closes the connection when ctx ends so
// the blocked read returns.
func (s *Session) keepalive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = s.conn.Close()
			return
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) readLoop() error {
	t := s.conn.transport
	t.SetReadLimit(constants.MaxMessageSize)
	_ = t.SetReadDeadline(time.Now().Add(s.pongWait))
	t.SetPongHandler(func(string) error {
		return t.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, data, err := t.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
				return err
			}
			return nil
		}
		_ = t.SetReadDeadline(time.Now().Add(s.pongWait))

		if err := s.handle(data); err != nil {
			s.logger.Debug().Err(err).Msg("WebSocket write error")
			return err
		}
	}
}

// handle answers pings and ignores everything else.
func (s *Session) handle(data []byte) error {
	env, err := events.Decode(data)
	if err != nil || env.Type != events.KindPing {
		return nil
	}
	s.pings.Add(1)
	return s.conn.Send(events.Pong())
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapParse("json", "", err)
	}
	return data, nil
}
