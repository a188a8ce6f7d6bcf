package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/appgen/pkg/errors"
)

type memoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemoryStore returns a store that keeps projects in process memory.
func NewMemoryStore() ProjectStore {
	return &memoryStore{projects: make(map[string]*Project)}
}

func (s *memoryStore) Create(_ context.Context, project *Project) (*Project, error) {
	p, err := normalizeNew(project)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return nil, errors.NewConflictError("project", p.ID, "already exists")
	}
	s.projects[p.ID] = p
	return p.Clone(), nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errors.NewNotFoundError("project", id)
	}
	return p.Clone(), nil
}

func (s *memoryStore) List(_ context.Context) ([]*Project, error) {
	s.mu.RLock()
	out := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, id string, fn func(*Project) error) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[id]
	if !ok {
		return nil, errors.NewNotFoundError("project", id)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.projects[id] = next
	return next.Clone(), nil
}

func (s *memoryStore) Backend() string {
	return BackendMemory
}

func (s *memoryStore) Close() error {
	return nil
}
