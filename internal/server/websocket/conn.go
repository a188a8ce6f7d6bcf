// Package websocket serves project subscriptions over WebSocket.
package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// Transport is the part of *websocket.Conn a session needs.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Transport = (*websocket.Conn)(nil)

// Conn is a subscriber connection. Writes are serialized and bounded by
// a write deadline so a stalled peer fails instead of blocking broadcasts.
type Conn struct {
	id        string
	transport Transport
	writeWait time.Duration

	mu     sync.Mutex
	closed bool
}

// NewConn wraps transport with a fresh connection ID.
func NewConn(transport Transport) *Conn {
	return &Conn{
		id:        uuid.NewString(),
		transport: transport,
		writeWait: constants.WriteWait,
	}
}

// ID implements hub.Conn.
func (c *Conn) ID() string {
	return c.id
}

// Send writes v as a JSON text message.
func (c *Conn) Send(v any) error {
	var (
		data []byte
		err  error
	)
	if env, ok := v.(events.Envelope); ok {
		data, err = events.Encode(env)
	} else {
		data, err = marshal(v)
	}
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// Ping sends a ping control frame.
func (c *Conn) Ping() error {
	return c.write(websocket.PingMessage, nil)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrClosed
	}
	_ = c.transport.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.transport.WriteMessage(messageType, data)
}

// Close closes the transport once. A close frame is attempted first.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.transport.SetWriteDeadline(time.Now().Add(c.writeWait))
	_ = c.transport.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.transport.Close()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
