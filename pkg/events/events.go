// Package events defines the messages exchanged between the pipeline
// orchestrator, the event fan-out layer and remote subscribers.
//
// Every outbound message is an Envelope of the form
//
//	{"type": "status_update", "data": {"project_id": "p1", ...}}
//
// Subscribers may send {"type": "ping"} and receive {"type": "pong"}.
package events

import (
	"encoding/json"

	"github.com/agentstation/appgen/pkg/errors"
)

// Kind identifies a message type on the wire.
type Kind string

// Lifecycle kinds raised by the orchestrator.
const (
	KindStatusUpdate Kind = "status_update"
	KindError        Kind = "error"
	KindCompletion   Kind = "completion"
)

// Control kinds exchanged with subscribers.
const (
	KindPing Kind = "ping"
	KindPong Kind = "pong"
)

// ProjectIDKey is the payload field every lifecycle event must carry.
const ProjectIDKey = "project_id"

// Kinds returns the lifecycle kinds in the order hooks are registered.
func Kinds() []Kind {
	return []Kind{KindStatusUpdate, KindError, KindCompletion}
}

// IsLifecycle reports whether k is raised by the orchestrator.
func (k Kind) IsLifecycle() bool {
	switch k {
	case KindStatusUpdate, KindError, KindCompletion:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Payload is the free-form data attached to an event.
type Payload map[string]any

// ProjectID returns the project the payload concerns.
func (p Payload) ProjectID() (string, bool) {
	return ProjectIDOf(p)
}

// Clone returns a shallow copy so the original can't be mutated through it.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ProjectIDOf extracts a non-empty string project_id from p.
func ProjectIDOf(p Payload) (string, bool) {
	if p == nil {
		return "", false
	}
	id, ok := p[ProjectIDKey].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Handler receives the payload of one lifecycle event.
type Handler func(payload Payload)

// Event is a lifecycle event before it is put on the wire.
type Event struct {
	Kind    Kind
	Payload Payload
}

// New creates an event, copying the payload.
func New(kind Kind, payload Payload) Event {
	return Event{Kind: kind, Payload: payload.Clone()}
}

// ProjectID returns the project the event concerns.
func (e Event) ProjectID() (string, bool) {
	return ProjectIDOf(e.Payload)
}

// Envelope converts the event to its wire form.
func (e Event) Envelope() Envelope {
	return Envelope{Type: e.Kind, Data: e.Payload}
}

// Envelope is the JSON message sent to and received from subscribers.
type Envelope struct {
	Type Kind    `json:"type"`
	Data Payload `json:"data,omitempty"`
}

// Ping returns a liveness probe.
func Ping() Envelope {
	return Envelope{Type: KindPing}
}

// Pong returns the reply to a liveness probe.
func Pong() Envelope {
	return Envelope{Type: KindPong}
}

// StatusSnapshot builds the status_update a subscriber receives on connect.
func StatusSnapshot(projectID, status string, completion float64, currentNode string) Envelope {
	return Envelope{
		Type: KindStatusUpdate,
		Data: Payload{
			ProjectIDKey:            projectID,
			"status":                status,
			"completion_percentage": completion,
			"current_node":          currentNode,
		},
	}
}

// Decode parses an inbound message. Anything that is not a JSON object
// with a string type yields a validation error.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.WrapParse("json", "", err)
	}
	if env.Type == "" {
		return Envelope{}, errors.NewValidationError("type", nil, "message type is required")
	}
	return env, nil
}

// Encode serializes an envelope.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapParse("json", "", err)
	}
	return data, nil
}
