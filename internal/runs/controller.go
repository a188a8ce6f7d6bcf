// Package runs schedules pipeline runs as detached background work and
// lets callers cancel them by project ID.
//
// A run is bound to a context owned by the Controller, never to the request
// that started it. Failures to schedule are returned to the caller; failures
// during execution are only reported through the error hook.
package runs

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// Runner executes and cancels pipeline runs.
type Runner interface {
	Run(ctx context.Context, projectID string, nodes []string) error
	Cancel(projectID string) bool
}

// ErrorReporter receives execution failures the runner did not report itself.
type ErrorReporter interface {
	OnError(payload events.Payload)
}

// Handle is one in-flight run.
type Handle struct {
	RunID     string
	ProjectID string
	Nodes     []string
	StartedAt time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
	err       error
}

// Done is closed when the run goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancelled reports whether cancellation was requested.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Err returns the run's outcome. Only valid after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Info is a read-only view of a handle.
type Info struct {
	RunID     string    `json:"run_id"`
	ProjectID string    `json:"project_id"`
	Nodes     []string  `json:"nodes,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Cancelled bool      `json:"cancelled"`
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	return Info{
		RunID:     h.RunID,
		ProjectID: h.ProjectID,
		Nodes:     append([]string(nil), h.Nodes...),
		StartedAt: h.StartedAt,
		Cancelled: h.Cancelled(),
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxConcurrent bounds how many runs may execute at once.
func WithMaxConcurrent(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.capacity = int64(n)
		}
	}
}

// Controller tracks active runs keyed by project ID.
type Controller struct {
	runner   Runner
	reporter ErrorReporter
	logger   *zerolog.Logger

	capacity int64
	sem      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.Mutex
	runs   map[string]*Handle
	closed bool
}

// NewController creates a controller that runs work through runner and
// reports unhandled failures to reporter.
func NewController(runner Runner, reporter ErrorReporter, logger *zerolog.Logger, opts ...Option) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		runner:   runner,
		reporter: reporter,
		logger:   logger,
		capacity: constants.MaxConcurrentRuns,
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sem = semaphore.NewWeighted(c.capacity)
	return c
}

// StartRun schedules a run for projectID and returns without waiting for it
// to begin. nodes optionally overrides the pipeline's stage list.
func (c *Controller) StartRun(projectID string, nodes []string) (*Handle, error) {
	if projectID == "" {
		return nil, errors.NewValidationError("project_id", projectID, "project ID is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.NewSchedulingError(projectID, "run controller is shut down", errors.ErrClosed)
	}
	if _, active := c.runs[projectID]; active {
		c.mu.Unlock()
		return nil, errors.NewConflictError("project", projectID, "a run is already active")
	}
	if !c.sem.TryAcquire(1) {
		c.mu.Unlock()
		return nil, errors.NewSchedulingError(projectID, "run capacity exhausted", nil)
	}

	ctx, cancel := context.WithCancel(c.ctx)
	h := &Handle{
		RunID:     uuid.NewString(),
		ProjectID: projectID,
		Nodes:     append([]string(nil), nodes...),
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.runs[projectID] = h
	c.wg.Go(func() { c.execute(ctx, h) })
	c.mu.Unlock()

	c.logger.Info().
		Str("project_id", projectID).
		Str("run_id", h.RunID).
		Strs("nodes", h.Nodes).
		Msg("Run scheduled")
	return h, nil
}

func (c *Controller) execute(ctx context.Context, h *Handle) {
	defer func() {
		c.mu.Lock()
		if c.runs[h.ProjectID] == h {
			delete(c.runs, h.ProjectID)
		}
		c.mu.Unlock()
		c.sem.Release(1)
		h.cancel()
		close(h.done)
	}()

	var err error
	var catcher panics.Catcher
	catcher.Try(func() {
		err = c.runner.Run(ctx, h.ProjectID, h.Nodes)
	})
	if r := catcher.Recovered(); r != nil {
		err = errors.NewRunError(h.ProjectID, "", false, r.AsError())
	}
	h.err = err

	log := c.logger.With().Str("project_id", h.ProjectID).Str("run_id", h.RunID).Logger()
	if err == nil {
		log.Info().Dur("elapsed", time.Since(h.StartedAt)).Msg("Run finished")
		return
	}
	log.Warn().Err(err).Bool("cancelled", h.Cancelled()).Msg("Run failed")

	if errors.IsReported(err) || c.reporter == nil {
		return
	}
	payload := events.Payload{
		events.ProjectIDKey: h.ProjectID,
		"run_id":            h.RunID,
		"error":             err.Error(),
	}
	if h.Cancelled() {
		payload["status"] = "cancelled"
	}
	c.reporter.OnError(payload)
}

// CancelRun signals the active run for projectID. It returns false when no
// run is active or cancellation was already requested. The runner decides
// when to stop.
func (c *Controller) CancelRun(projectID string) bool {
	c.mu.Lock()
	h, ok := c.runs[projectID]
	if !ok || !h.cancelled.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	h.cancel()
	acknowledged := c.runner.Cancel(projectID)

	c.logger.Info().
		Str("project_id", projectID).
		Str("run_id", h.RunID).
		Bool("acknowledged", acknowledged).
		Msg("Run cancellation requested")
	return true
}

// Active returns the in-flight run for projectID, if any.
func (c *Controller) Active(projectID string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.runs[projectID]
	return h, ok
}

// List returns all active runs ordered by start time.
func (c *Controller) List() []Info {
	c.mu.Lock()
	out := make([]Info, 0, len(c.runs))
	for _, h := range c.runs {
		out = append(out, h.Info())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Count returns the number of active runs.
func (c *Controller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

// Capacity returns the maximum number of concurrent runs.
func (c *Controller) Capacity() int {
	return int(c.capacity)
}

// Shutdown stops accepting runs, cancels the active ones and waits for
// their goroutines until ctx expires.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	active := make([]*Handle, 0, len(c.runs))
	for _, h := range c.runs {
		active = append(active, h)
	}
	c.mu.Unlock()

	for _, h := range active {
		if h.cancelled.CompareAndSwap(false, true) {
			c.runner.Cancel(h.ProjectID)
		}
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info().Int("cancelled", len(active)).Msg("Run controller stopped")
		return nil
	case <-ctx.Done():
		return errors.WrapResource("shutdown", "run controller", "", ctx.Err())
	}
}
