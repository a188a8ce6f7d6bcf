// Package store persists project records for the pipeline service.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// Status is the lifecycle state of a project.
type Status string

// Project statuses.
const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendBbolt  = "bbolt"
)

// Project is one pipeline workspace and its latest progress.
type Project struct {
	ID                   string            `json:"project_id"`
	Name                 string            `json:"name"`
	Requirements         string            `json:"requirements,omitempty"`
	Status               Status            `json:"status"`
	CurrentNode          string            `json:"current_node,omitempty"`
	CompletionPercentage float64           `json:"completion_percentage"`
	CompletedNodes       []string          `json:"completed_nodes,omitempty"`
	Artifacts            map[string]string `json:"artifacts,omitempty"`
	Error                string            `json:"error,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	out := *p
	out.CompletedNodes = append([]string(nil), p.CompletedNodes...)
	if p.Artifacts != nil {
		out.Artifacts = make(map[string]string, len(p.Artifacts))
		for k, v := range p.Artifacts {
			out.Artifacts[k] = v
		}
	}
	return &out
}

// ProjectStore reads and writes projects.
type ProjectStore interface {
	Create(ctx context.Context, project *Project) (*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context) ([]*Project, error)
	// Update applies fn to the stored project atomically and saves the result.
	Update(ctx context.Context, id string, fn func(*Project) error) (*Project, error)
	Backend() string
	Close() error
}

// Open returns the store for backend. path is only used by bbolt.
func Open(backend, path string) (ProjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBbolt:
		return NewBboltStore(path)
	default:
		return nil, errors.NewConfigError("store", "unknown backend "+backend, errors.ErrInvalidInput)
	}
}

// normalizeNew validates a project before it is first stored.
func normalizeNew(project *Project) (*Project, error) {
	if project == nil {
		return nil, errors.NewValidationError("project", nil, "project is required")
	}
	p := project.Clone()
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, errors.NewValidationError("name", p.Name, "name is required")
	}
	if len(p.Name) > constants.MaxProjectNameLength {
		return nil, errors.NewValidationError("name", p.Name, "name is too long")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusCreated
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}
