package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

var bucketProjects = []byte("projects")

type bboltStore struct {
	mu sync.Mutex
	db *bolt.DB
}

// NewBboltStore opens (or creates) a bbolt database at path.
func NewBboltStore(path string) (ProjectStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.NewConfigError("store", "store path is required for bbolt", errors.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.SecureDirPermissions); err != nil {
		return nil, errors.WrapIO("create", filepath.Dir(path), err)
	}
	db, err := bolt.Open(path, constants.SecureFilePermissions, &bolt.Options{Timeout: constants.StoreOpenTimeout})
	if err != nil {
		return nil, errors.WrapResource("open", "store", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProjects)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("init", "store", path, err)
	}
	return &bboltStore{db: db}, nil
}

func (s *bboltStore) Create(_ context.Context, project *Project) (*Project, error) {
	p, err := normalizeNew(project)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapParse("json", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		key := []byte(p.ID)
		if b.Get(key) != nil {
			return errors.NewConflictError("project", p.ID, "already exists")
		}
		return b.Put(key, raw)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *bboltStore) Get(_ context.Context, id string) (*Project, error) {
	var out *Project
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketProjects).Get([]byte(id))
		if len(raw) == 0 {
			return errors.NewNotFoundError("project", id)
		}
		var p Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return errors.WrapParse("json", id, err)
		}
		out = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *bboltStore) List(_ context.Context) ([]*Project, error) {
	out := make([]*Project, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			var p Project
			if err := json.Unmarshal(v, &p); err != nil {
				return errors.WrapParse("json", string(k), err)
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *bboltStore) Update(_ context.Context, id string, fn func(*Project) error) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *Project
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		key := []byte(id)
		raw := b.Get(key)
		if len(raw) == 0 {
			return errors.NewNotFoundError("project", id)
		}
		var current Project
		if err := json.Unmarshal(raw, &current); err != nil {
			return errors.WrapParse("json", id, err)
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(next)
		if err != nil {
			return errors.WrapParse("json", id, err)
		}
		out = next
		return b.Put(key, encoded)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *bboltStore) Backend() string {
	return BackendBbolt
}

func (s *bboltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
