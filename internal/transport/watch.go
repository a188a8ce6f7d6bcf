package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// WatchFunc receives each event of a watched project. Returning false ends
// the watch.
type WatchFunc func(env events.Envelope) bool

// WatchOptions tune a watch. Zero values use the defaults.
type WatchOptions struct {
	// PingInterval is how often an application ping is sent. Pongs are
	// consumed silently.
	PingInterval time.Duration
}

// wsURL maps the REST base URL onto the project's websocket endpoint.
func (c *Client) wsURL(projectID string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.prefix + "/projects/" + projectID + "/ws"
	return u.String()
}

// Watch subscribes to projectID and calls fn for every lifecycle event until
// fn returns false, ctx is cancelled or the connection fails. A clean stop
// returns nil.
func (c *Client) Watch(ctx context.Context, projectID string, opts WatchOptions, fn WatchFunc) error {
	if opts.PingInterval <= 0 {
		opts.PingInterval = constants.PingPeriod
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultHTTPTimeout,
		ReadBufferSize:   constants.SocketBufferSize,
		WriteBufferSize:  constants.SocketBufferSize,
	}
	target := c.wsURL(projectID)
	conn, resp, err := dialer.DialContext(ctx, target, authHeader(c.auth, c.apiKey))
	if err != nil {
		if resp != nil {
			return DecodeResponse(resp, nil)
		}
		return errors.WrapIO("dial", target, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
		return conn.WriteMessage(messageType, data)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(opts.PingInterval)
		defer ticker.Stop()
		ping, _ := events.Encode(events.Ping())
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := write(websocket.TextMessage, ping); err != nil {
					return
				}
			}
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.WrapIO("read", target, err)
		}

		env, err := events.Decode(data)
		if err != nil || env.Type == events.KindPong {
			continue
		}
		if !fn(env) {
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}
