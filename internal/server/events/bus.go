// Package events connects the pipeline orchestrator's lifecycle hooks to the
// subscriber fan-out. The orchestrator raises status updates, errors and
// completions; the Bus wraps each one in a wire envelope and hands it to the
// broadcaster for the project it concerns.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/internal/server/hub"
	"github.com/agentstation/appgen/pkg/errors"
	appevents "github.com/agentstation/appgen/pkg/events"
)

// Broadcaster delivers one message to every subscriber of a project.
type Broadcaster interface {
	Broadcast(projectID string, message any) hub.Result
}

// HookRegistrar is implemented by orchestrators that accept lifecycle hooks.
type HookRegistrar interface {
	RegisterHook(kind appevents.Kind, fn appevents.Handler) error
}

// Listener observes every event the bus accepts, after it was broadcast.
type Listener func(ev appevents.Event)

// Option configures a Bus.
type Option func(*Bus)

// WithListener adds a listener notified of each accepted event.
func WithListener(l Listener) Option {
	return func(b *Bus) {
		b.listeners = append(b.listeners, l)
	}
}

// Bus translates orchestrator hook calls into broadcasts.
type Bus struct {
	broadcaster Broadcaster
	logger      *zerolog.Logger
	listeners   []Listener

	attachMu sync.Mutex
	attached bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBus creates a bus publishing through broadcaster.
func NewBus(broadcaster Broadcaster, logger *zerolog.Logger, opts ...Option) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Bus{
		broadcaster: broadcaster,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers the bus's three handlers with the orchestrator.
// It may be called once; later calls return ErrAlreadyExists.
func (b *Bus) Attach(registrar HookRegistrar) error {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()

	if b.attached {
		return errors.NewConflictError("hook bus", "", "already attached to an orchestrator")
	}

	handlers := map[appevents.Kind]appevents.Handler{
		appevents.KindStatusUpdate: b.OnStatusUpdate,
		appevents.KindError:        b.OnError,
		appevents.KindCompletion:   b.OnCompletion,
	}
	for _, kind := range appevents.Kinds() {
		if err := registrar.RegisterHook(kind, handlers[kind]); err != nil {
			return errors.WrapResource("register", "hook", kind.String(), err)
		}
	}

	b.attached = true
	b.logger.Debug().Msg("Event hooks attached")
	return nil
}

// OnStatusUpdate publishes a status_update event.
func (b *Bus) OnStatusUpdate(payload appevents.Payload) {
	b.Publish(appevents.KindStatusUpdate, payload)
}

// OnError publishes an error event.
func (b *Bus) OnError(payload appevents.Payload) {
	b.Publish(appevents.KindError, payload)
}

// OnCompletion publishes a completion event.
func (b *Bus) OnCompletion(payload appevents.Payload) {
	b.Publish(appevents.KindCompletion, payload)
}

// Publish broadcasts payload under kind to the subscribers of its project.
// Payloads without a project_id are dropped and counted. It reports whether
// the event was accepted.
func (b *Bus) Publish(kind appevents.Kind, payload appevents.Payload) bool {
	ev := appevents.New(kind, payload)
	projectID, ok := ev.ProjectID()
	if !ok {
		b.dropped.Add(1)
		b.logger.Debug().
			Str("event_type", kind.String()).
			Msg("Dropped event without project_id")
		return false
	}

	res := b.broadcaster.Broadcast(projectID, ev.Envelope())
	b.published.Add(1)

	for _, l := range b.listeners {
		l(ev)
	}

	if res.Attempted > 0 {
		b.logger.Debug().
			Str("event_type", kind.String()).
			Str("project_id", projectID).
			Int("subscribers", res.Delivered).
			Msg("Event published")
	}
	return true
}

// Published returns how many events were accepted.
func (b *Bus) Published() int64 {
	return b.published.Load()
}

// Dropped returns how many malformed events were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
