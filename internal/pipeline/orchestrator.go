// Package pipeline is the reference orchestrator: it walks a project through
// the stages of a Definition and reports progress through lifecycle hooks.
package pipeline

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// NodeInfo describes one available pipeline node.
type NodeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Timeout     string `json:"timeout"`
	Command     bool   `json:"command"`
}

// Orchestrator runs pipelines for projects held in a ProjectStore.
type Orchestrator struct {
	def      *Definition
	store    store.ProjectStore
	executor Executor
	logger   *zerolog.Logger

	hooksMu sync.RWMutex
	hooks   map[events.Kind]events.Handler

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates an orchestrator. A nil definition uses Default.
func New(def *Definition, st store.ProjectStore, executor Executor, logger *zerolog.Logger) *Orchestrator {
	if def == nil {
		def = Default()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Orchestrator{
		def:      def,
		store:    st,
		executor: executor,
		logger:   logger,
		hooks:    make(map[events.Kind]events.Handler),
		running:  make(map[string]context.CancelFunc),
	}
}

// RegisterHook installs the handler for a lifecycle kind. Only one handler
// per kind is kept; registering again replaces it.
func (o *Orchestrator) RegisterHook(kind events.Kind, fn events.Handler) error {
	if !kind.IsLifecycle() {
		return errors.NewValidationError("kind", kind, "not a lifecycle event kind")
	}
	if fn == nil {
		return errors.NewValidationError("handler", nil, "handler is required")
	}
	o.hooksMu.Lock()
	o.hooks[kind] = fn
	o.hooksMu.Unlock()
	return nil
}

func (o *Orchestrator) emit(kind events.Kind, payload events.Payload) {
	o.hooksMu.RLock()
	fn := o.hooks[kind]
	o.hooksMu.RUnlock()
	if fn != nil {
		fn(payload)
	}
}

// Definition returns the pipeline definition in use.
func (o *Orchestrator) Definition() *Definition {
	return o.def
}

// Nodes lists the stages of the definition.
func (o *Orchestrator) Nodes() []NodeInfo {
	out := make([]NodeInfo, 0, len(o.def.Stages))
	for _, s := range o.def.Stages {
		out = append(out, NodeInfo{
			Name:        s.Name,
			Description: s.Description,
			Timeout:     s.TimeoutDuration().String(),
			Command:     len(s.Command) > 0,
		})
	}
	return out
}

// ValidateNodes checks a node override against the definition.
func (o *Orchestrator) ValidateNodes(nodes []string) error {
	_, err := o.def.Select(nodes)
	return err
}

// CreateProject stores a new project.
func (o *Orchestrator) CreateProject(ctx context.Context, name, requirements string) (*store.Project, error) {
	if len(requirements) > constants.MaxRequirementsSize {
		return nil, errors.NewValidationError("requirements", nil, "requirements are too large")
	}
	p, err := o.store.Create(ctx, &store.Project{Name: name, Requirements: requirements})
	if err != nil {
		return nil, err
	}
	o.logger.Info().Str("project_id", p.ID).Str("name", p.Name).Msg("Project created")
	return p, nil
}

// ListProjects returns every project.
func (o *Orchestrator) ListProjects(ctx context.Context) ([]*store.Project, error) {
	return o.store.List(ctx)
}

// ProjectStatus returns the current record for projectID.
func (o *Orchestrator) ProjectStatus(ctx context.Context, projectID string) (*store.Project, error) {
	return o.store.Get(ctx, projectID)
}

// StatusSnapshot builds the status message sent to a new subscriber.
func (o *Orchestrator) StatusSnapshot(ctx context.Context, projectID string) (events.Envelope, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return events.Envelope{}, err
	}
	return events.StatusSnapshot(p.ID, string(p.Status), p.CompletionPercentage, p.CurrentNode), nil
}

// Running reports whether a run is executing for projectID.
func (o *Orchestrator) Running(projectID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[projectID]
	return ok
}

// Cancel asks the run for projectID to stop at its next checkpoint.
func (o *Orchestrator) Cancel(projectID string) bool {
	o.mu.Lock()
	cancel, ok := o.running[projectID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Run executes the selected stages for projectID in order. Every failure is
// published through the error hook before it is returned, so the returned
// error is always marked as reported. A cancelled run publishes a
// completion with status "cancelled" and returns nil.
func (o *Orchestrator) Run(ctx context.Context, projectID string, nodes []string) error {
	log := o.logger.With().Str("project_id", projectID).Logger()

	project, err := o.store.Get(ctx, projectID)
	if err != nil {
		return o.fail(projectID, "", err, false)
	}
	stages, err := o.def.Select(nodes)
	if err != nil {
		return o.fail(projectID, "", err, false)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.running[projectID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, projectID)
		o.mu.Unlock()
	}()

	if _, err := o.store.Update(ctx, projectID, func(p *store.Project) error {
		p.Status = store.StatusRunning
		p.CurrentNode = ""
		p.CompletionPercentage = 0
		p.CompletedNodes = nil
		p.Error = ""
		return nil
	}); err != nil {
		return o.fail(projectID, "", err, false)
	}
	o.emit(events.KindStatusUpdate, events.Payload{
		events.ProjectIDKey:     projectID,
		"status":                string(store.StatusRunning),
		"current_node":          "",
		"completion_percentage": 0.0,
		"progress":              0.0,
		"total_nodes":           len(stages),
	})
	log.Info().Int("stages", len(stages)).Msg("Pipeline started")

	started := time.Now()
	for i, stage := range stages {
		if ctx.Err() != nil {
			return o.cancelled(projectID, stage.Name)
		}

		pct := percent(i, len(stages))
		if _, err := o.store.Update(ctx, projectID, func(p *store.Project) error {
			p.CurrentNode = stage.Name
			return nil
		}); err != nil {
			return o.fail(projectID, stage.Name, err, false)
		}
		o.emit(events.KindStatusUpdate, events.Payload{
			events.ProjectIDKey:     projectID,
			"status":                string(store.StatusRunning),
			"current_node":          stage.Name,
			"completion_percentage": pct,
			"progress":              pct,
			"message":               stage.Description,
		})

		res, err := o.executor.Execute(ctx, Job{
			ProjectID:    projectID,
			Stage:        stage,
			Requirements: project.Requirements,
		})
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(projectID, stage.Name)
			}
			return o.fail(projectID, stage.Name, err, true)
		}

		pct = percent(i+1, len(stages))
		if _, err := o.store.Update(context.WithoutCancel(ctx), projectID, func(p *store.Project) error {
			p.CompletedNodes = append(p.CompletedNodes, stage.Name)
			p.CompletionPercentage = pct
			if p.Artifacts == nil {
				p.Artifacts = make(map[string]string)
			}
			p.Artifacts[stage.Name] = res.Output
			return nil
		}); err != nil {
			return o.fail(projectID, stage.Name, err, false)
		}
		log.Debug().Str("node", stage.Name).Float64("completion_percentage", pct).Msg("Stage completed")
	}

	final, err := o.store.Update(context.WithoutCancel(ctx), projectID, func(p *store.Project) error {
		p.Status = store.StatusCompleted
		p.CurrentNode = ""
		p.CompletionPercentage = 100
		return nil
	})
	if err != nil {
		return o.fail(projectID, "", err, false)
	}
	o.emit(events.KindCompletion, events.Payload{
		events.ProjectIDKey:     projectID,
		"status":                string(store.StatusCompleted),
		"completion_percentage": 100.0,
		"completed_nodes":       final.CompletedNodes,
		"duration_ms":           time.Since(started).Milliseconds(),
	})
	log.Info().Dur("elapsed", time.Since(started)).Msg("Pipeline completed")
	return nil
}

func (o *Orchestrator) cancelled(projectID, node string) error {
	_, err := o.store.Update(context.Background(), projectID, func(p *store.Project) error {
		p.Status = store.StatusCancelled
		return nil
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("project_id", projectID).Msg("Failed to record cancellation")
	}
	o.emit(events.KindCompletion, events.Payload{
		events.ProjectIDKey: projectID,
		"status":            string(store.StatusCancelled),
		"current_node":      node,
	})
	o.logger.Info().Str("project_id", projectID).Str("node", node).Msg("Pipeline cancelled")
	return nil
}

// fail records the failure when the project exists, publishes it and
// returns it marked as reported.
func (o *Orchestrator) fail(projectID, node string, cause error, record bool) error {
	if record {
		_, err := o.store.Update(context.Background(), projectID, func(p *store.Project) error {
			p.Status = store.StatusFailed
			p.Error = cause.Error()
			return nil
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("project_id", projectID).Msg("Failed to record failure")
		}
	}

	payload := events.Payload{
		events.ProjectIDKey: projectID,
		"status":            string(store.StatusFailed),
		"error":             cause.Error(),
	}
	if node != "" {
		payload["node"] = node
	}
	var procErr *errors.ProcessError
	if errors.As(cause, &procErr) {
		payload["exit_code"] = procErr.ExitCode
		payload["output"] = tail(procErr.Output, 2000)
	}
	o.emit(events.KindError, payload)

	o.logger.Error().Err(cause).Str("project_id", projectID).Str("node", node).Msg("Pipeline failed")
	return errors.NewRunError(projectID, node, true, cause)
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(done)/float64(total)*10000) / 100
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
