// Package hub tracks live subscriber connections per project and fans
// messages out to them.
package hub

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Conn is one subscriber connection. Its lifetime belongs to the transport;
// the registry only holds it while it is registered.
type Conn interface {
	// ID uniquely identifies the connection for its whole lifetime.
	ID() string
	// Send delivers one message. It fails once the peer is gone.
	Send(v any) error
	// Close releases the underlying transport.
	Close() error
}

// Registry maps project IDs to the connections subscribed to them.
// A connection belongs to at most one project at a time.
type Registry struct {
	mu      sync.RWMutex
	sets    map[string]map[string]Conn
	project map[string]string // conn ID -> project ID
	logger  *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		sets:    make(map[string]map[string]Conn),
		project: make(map[string]string),
		logger:  logger,
	}
}

// Register adds conn to the set for projectID, creating the set if needed.
// A connection already registered under another project is moved.
func (r *Registry) Register(projectID string, conn Conn) {
	id := conn.ID()

	r.mu.Lock()
	if prev, ok := r.project[id]; ok && prev != projectID {
		r.removeLocked(prev, id)
	}
	set, ok := r.sets[projectID]
	if !ok {
		set = make(map[string]Conn)
		r.sets[projectID] = set
	}
	set[id] = conn
	r.project[id] = projectID
	count := len(set)
	r.mu.Unlock()

	r.logger.Debug().
		Str("project_id", projectID).
		Str("conn_id", id).
		Int("subscribers", count).
		Msg("Subscriber registered")
}

// Unregister removes conn from the set for projectID. It returns false when
// the connection was not registered there, which is not an error.
func (r *Registry) Unregister(projectID string, conn Conn) bool {
	id := conn.ID()

	r.mu.Lock()
	removed := r.removeLocked(projectID, id)
	r.mu.Unlock()

	if removed {
		r.logger.Debug().
			Str("project_id", projectID).
			Str("conn_id", id).
			Msg("Subscriber unregistered")
	}
	return removed
}

func (r *Registry) removeLocked(projectID, id string) bool {
	set, ok := r.sets[projectID]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	delete(r.project, id)
	if len(set) == 0 {
		delete(r.sets, projectID)
	}
	return true
}

// Snapshot returns a copy of the connections registered for projectID.
// Mutating the returned slice does not affect the registry.
func (r *Registry) Snapshot(projectID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sets[projectID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Count returns the number of connections registered for projectID.
func (r *Registry) Count(projectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets[projectID])
}

// Total returns the number of registered connections across all projects.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.project)
}

// Projects returns subscriber counts keyed by project ID.
func (r *Registry) Projects() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.sets))
	for id, set := range r.sets {
		out[id] = len(set)
	}
	return out
}

// ProjectIDs returns the projects that currently have subscribers, sorted.
func (r *Registry) ProjectIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
