package hub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id      string
	mu      sync.Mutex
	got     []any
	sendErr error
	panics  bool
	closed  atomic.Bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(v any) error {
	if c.panics {
		panic("send exploded")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.got...)
}

func newTestHub() (*Registry, *Broadcaster) {
	logger := zerolog.Nop()
	reg := NewRegistry(&logger)
	return reg, NewBroadcaster(reg, &logger)
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	reg, _ := newTestHub()
	a, b := newFakeConn("a"), newFakeConn("b")

	reg.Register("p1", a)
	reg.Register("p1", b)
	assert.Equal(t, 2, reg.Count("p1"))
	assert.Equal(t, 2, reg.Total())

	assert.True(t, reg.Unregister("p1", a))
	assert.False(t, reg.Unregister("p1", a), "double removal is a no-op")
	assert.False(t, reg.Unregister("p2", b), "wrong project is a no-op")
	assert.Equal(t, 1, reg.Count("p1"))

	assert.True(t, reg.Unregister("p1", b))
	assert.Empty(t, reg.Projects(), "empty sets are dropped")
}

func TestRegistry_ConnectionInOneSet(t *testing.T) {
	reg, _ := newTestHub()
	c := newFakeConn("c")

	reg.Register("p1", c)
	reg.Register("p2", c)

	assert.Equal(t, 0, reg.Count("p1"))
	assert.Equal(t, 1, reg.Count("p2"))
	assert.Equal(t, 1, reg.Total())
	assert.Equal(t, []string{"p2"}, reg.ProjectIDs())
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	reg, _ := newTestHub()
	reg.Register("p1", newFakeConn("a"))

	snap := reg.Snapshot("p1")
	require.Len(t, snap, 1)
	snap[0] = newFakeConn("intruder")
	_ = append(snap, newFakeConn("extra"))

	again := reg.Snapshot("p1")
	require.Len(t, again, 1)
	assert.Equal(t, "a", again[0].ID())
}

func TestBroadcast_DeliversExactlyOnceToMembers(t *testing.T) {
	reg, bc := newTestHub()
	members := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for _, c := range members {
		reg.Register("p1", c)
	}
	other := newFakeConn("other")
	reg.Register("p2", other)
	gone := newFakeConn("gone")
	reg.Register("p1", gone)
	reg.Unregister("p1", gone)

	res := bc.Broadcast("p1", "hello")

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 3, res.Delivered)
	assert.Empty(t, res.Failed)
	for _, c := range members {
		assert.Equal(t, []any{"hello"}, c.received(), c.id)
	}
	assert.Empty(t, other.received())
	assert.Empty(t, gone.received())
}

func TestBroadcast_FailedConnectionRemoved(t *testing.T) {
	reg, bc := newTestHub()
	good := newFakeConn("good")
	broken := newFakeConn("broken")
	broken.sendErr = errors.New("connection reset")
	panicky := newFakeConn("panicky")
	panicky.panics = true

	reg.Register("p1", good)
	reg.Register("p1", broken)
	reg.Register("p1", panicky)

	res := bc.Broadcast("p1", "event")

	assert.Equal(t, 1, res.Delivered)
	assert.ElementsMatch(t, []string{"broken", "panicky"}, res.Failed)
	assert.Equal(t, []any{"event"}, good.received())
	assert.True(t, broken.closed.Load())
	assert.True(t, panicky.closed.Load())
	assert.False(t, good.closed.Load())

	snap := reg.Snapshot("p1")
	require.Len(t, snap, 1)
	assert.Equal(t, "good", snap[0].ID())
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	_, bc := newTestHub()

	res := bc.Broadcast("nobody", "event")

	assert.Equal(t, Result{}, res)
}

func TestBroadcast_PreservesOrderPerConnection(t *testing.T) {
	reg, bc := newTestHub()
	c := newFakeConn("a")
	reg.Register("p1", c)

	for i := range 50 {
		bc.Broadcast("p1", i)
	}

	got := c.received()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBroadcast_ConcurrentMembershipChanges(t *testing.T) {
	reg, bc := newTestHub()
	stable := newFakeConn("stable")
	reg.Register("p1", stable)

	const rounds = 200
	churned := make([]*fakeConn, 0, rounds)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range rounds {
			c := newFakeConn(fmt.Sprintf("churn-%d", i))
			churned = append(churned, c)
			reg.Register("p1", c)
			reg.Unregister("p1", c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := range rounds {
			bc.Broadcast("p1", i)
		}
	}()
	wg.Wait()

	assert.Len(t, stable.received(), rounds)
	for _, c := range churned {
		seen := make(map[any]bool)
		for _, v := range c.received() {
			assert.False(t, seen[v], "%s received %v twice", c.id, v)
			seen[v] = true
		}
	}
	assert.Equal(t, 1, reg.Count("p1"))
}
