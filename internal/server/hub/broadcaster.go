package hub

import (
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/agentstation/appgen/pkg/errors"
)

// Result summarizes one broadcast pass.
type Result struct {
	Attempted int
	Delivered int
	// Failed holds the IDs of connections dropped during the pass.
	Failed []string
}

// Broadcaster delivers messages to every connection registered for a project.
// Connections that fail are removed after the pass and closed.
type Broadcaster struct {
	registry *Registry
	logger   *zerolog.Logger
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *Registry, logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast sends message once to each connection in the current snapshot
// for projectID. Sends run concurrently and Broadcast returns after all of
// them finish, so successive broadcasts reach a connection in call order.
// Errors and panics from one connection never affect the others.
func (b *Broadcaster) Broadcast(projectID string, message any) Result {
	conns := b.registry.Snapshot(projectID)
	if len(conns) == 0 {
		return Result{}
	}

	failures := make([]error, len(conns))
	var wg conc.WaitGroup
	for i, conn := range conns {
		wg.Go(func() {
			var catcher panics.Catcher
			catcher.Try(func() {
				failures[i] = conn.Send(message)
			})
			if r := catcher.Recovered(); r != nil {
				failures[i] = r.AsError()
			}
		})
	}
	wg.Wait()

	result := Result{Attempted: len(conns)}
	for i, err := range failures {
		if err == nil {
			result.Delivered++
			continue
		}
		conn := conns[i]
		result.Failed = append(result.Failed, conn.ID())
		b.registry.Unregister(projectID, conn)
		_ = conn.Close()

		b.logger.Warn().
			Err(errors.NewDeliveryError(conn.ID(), projectID, err)).
			Str("project_id", projectID).
			Str("conn_id", conn.ID()).
			Msg("Dropped subscriber after failed delivery")
	}

	b.logger.Debug().
		Str("project_id", projectID).
		Int("delivered", result.Delivered).
		Int("failed", len(result.Failed)).
		Msg("Event broadcasted")

	return result
}
