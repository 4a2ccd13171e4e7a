package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no deployment exists for the requested id.
var ErrNotFound = errors.New("deployment not found")

// ErrLocked is returned when another process holds the deployment's lock.
// Two orchestrator runs must never target the same deployment id concurrently.
var ErrLocked = errors.New("deployment is locked by another run")

// Store persists deployment records addressable by deployment id.
type Store interface {
	Save(ctx context.Context, d *Deployment) error
	Load(ctx context.Context, id string) (*Deployment, error)
	List(ctx context.Context) ([]string, error)
}

// FileStore keeps one YAML document per deployment under a directory.
// Writes go through a temp file plus rename so a crash mid-write never
// corrupts the checkpoint. Acquire guards the id with a file lock for the
// lifetime of a run.
type FileStore struct {
	dir   string
	locks map[string]*flock.Flock
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*flock.Flock)}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// Acquire takes the per-deployment lock. It fails fast with ErrLocked when
// another process already holds it.
func (s *FileStore) Acquire(ctx context.Context, id string) error {
	fl := flock.New(filepath.Join(s.dir, id+".lock"))
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire deployment lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, id)
	}
	s.locks[id] = fl
	return nil
}

// Release drops the per-deployment lock if held.
func (s *FileStore) Release(id string) {
	if fl, ok := s.locks[id]; ok {
		_ = fl.Unlock()
		delete(s.locks, id)
	}
}

// Save writes the deployment document atomically.
func (s *FileStore) Save(_ context.Context, d *Deployment) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal deployment %s: %w", d.ID, err)
	}

	tmp := s.path(d.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write deployment %s: %w", d.ID, err)
	}
	if err := os.Rename(tmp, s.path(d.ID)); err != nil {
		return fmt.Errorf("failed to commit deployment %s: %w", d.ID, err)
	}
	return nil
}

// Load reads the deployment document for id.
func (s *FileStore) Load(_ context.Context, id string) (*Deployment, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read deployment %s: %w", id, err)
	}

	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse deployment %s: %w", id, err)
	}
	return &d, nil
}

// List returns the ids of all persisted deployments.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yaml"))
	}
	return ids, nil
}
