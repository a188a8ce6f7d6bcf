package events

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/appgen/internal/server/hub"
	"github.com/agentstation/appgen/pkg/errors"
	appevents "github.com/agentstation/appgen/pkg/events"
	"github.com/agentstation/appgen/pkg/logging"
)

type recordingConn struct {
	mu  sync.Mutex
	got []appevents.Envelope
}

func (c *recordingConn) ID() string { return "rec" }

func (c *recordingConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, v.(appevents.Envelope))
	return nil
}

func (c *recordingConn) Close() error { return nil }

type fakeRegistrar struct {
	hooks map[appevents.Kind]appevents.Handler
}

func (r *fakeRegistrar) RegisterHook(kind appevents.Kind, fn appevents.Handler) error {
	if r.hooks == nil {
		r.hooks = make(map[appevents.Kind]appevents.Handler)
	}
	r.hooks[kind] = fn
	return nil
}

func newTestBus(t *testing.T, opts ...Option) (*Bus, *hub.Registry) {
	t.Helper()
	logger := zerolog.Nop()
	reg := hub.NewRegistry(&logger)
	return NewBus(hub.NewBroadcaster(reg, &logger), &logger, opts...), reg
}

func TestBus_OrderPreserved(t *testing.T) {
	bus, reg := newTestBus(t)
	conn := &recordingConn{}
	reg.Register("p1", conn)

	bus.OnStatusUpdate(appevents.Payload{"project_id": "p1", "progress": 50})
	bus.OnCompletion(appevents.Payload{"project_id": "p1", "status": "done"})

	require.Len(t, conn.got, 2)
	assert.Equal(t, appevents.KindStatusUpdate, conn.got[0].Type)
	assert.Equal(t, 50, conn.got[0].Data["progress"])
	assert.Equal(t, appevents.KindCompletion, conn.got[1].Type)
	assert.Equal(t, "done", conn.got[1].Data["status"])
}

func TestBus_DropsPayloadWithoutProjectID(t *testing.T) {
	tl := logging.NewTestLogger(t)
	reg := hub.NewRegistry(tl.Logger)
	bus := NewBus(hub.NewBroadcaster(reg, tl.Logger), tl.Logger)
	conn := &recordingConn{}
	reg.Register("p1", conn)

	bus.OnError(appevents.Payload{"error": "boom"})
	bus.OnStatusUpdate(appevents.Payload{"project_id": 7})

	assert.Empty(t, conn.got)
	assert.Equal(t, int64(2), bus.Dropped())
	assert.Equal(t, int64(0), bus.Published())
	tl.AssertContains(t, "Dropped event without project_id")
}

func TestBus_Attach(t *testing.T) {
	bus, reg := newTestBus(t)
	conn := &recordingConn{}
	reg.Register("p1", conn)
	registrar := &fakeRegistrar{}

	require.NoError(t, bus.Attach(registrar))
	assert.Len(t, registrar.hooks, 3)

	err := bus.Attach(registrar)
	assert.True(t, errors.IsAlreadyExists(err))

	registrar.hooks[appevents.KindError](appevents.Payload{"project_id": "p1", "error": "stage failed"})
	require.Len(t, conn.got, 1)
	assert.Equal(t, appevents.KindError, conn.got[0].Type)
}

func TestBus_Listener(t *testing.T) {
	var seen []string
	bus, _ := newTestBus(t, WithListener(func(ev appevents.Event) {
		id, _ := ev.ProjectID()
		seen = append(seen, id+":"+ev.Kind.String())
	}))

	bus.OnStatusUpdate(appevents.Payload{"project_id": "p9"})
	bus.OnCompletion(appevents.Payload{"project_id": "p9"})
	bus.OnError(appevents.Payload{})

	assert.Equal(t, []string{"p9:status_update", "p9:completion"}, seen)
	assert.Equal(t, int64(2), bus.Published())
}
