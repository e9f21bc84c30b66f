// Package registry discovers model files on disk and resolves model
// references (file name or path) to absolute paths.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"sessiond/internal/common/fsutil"
	"sessiond/pkg/types"
)

// ErrModelNotFound is returned when a reference matches no known model.
var ErrModelNotFound = errors.New("model not found")

// IsNotFound reports whether err is ErrModelNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

// Registry caches the result of scanning one models directory.
type Registry struct {
	dir     string
	scanner Scanner

	mu     sync.RWMutex
	models []types.Model
}

// New returns a Registry over dir. A nil scanner uses the default extensions.
func New(dir string, s Scanner) *Registry {
	if s == nil {
		s = NewScanner()
	}
	return &Registry{dir: dir, scanner: s}
}

// Dir returns the configured models directory.
func (r *Registry) Dir() string { return r.dir }

// Refresh rescans the directory. An empty dir yields an empty registry.
func (r *Registry) Refresh() error {
	if r.dir == "" {
		r.mu.Lock()
		r.models = nil
		r.mu.Unlock()
		return nil
	}
	models, err := r.scanner.Scan(r.dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
	return nil
}

// List returns a copy of the known models.
func (r *Registry) List() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Model(nil), r.models...)
}

// Resolve maps ref to a file path. A known ID or name resolves to its path;
// a ref containing a path separator (or ~) is returned expanded as is, so
// files outside the models directory can still be loaded.
func (r *Registry) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrModelNotFound)
	}
	r.mu.RLock()
	for _, m := range r.models {
		if m.ID == ref || m.Name == ref {
			r.mu.RUnlock()
			return m.Path, nil
		}
	}
	r.mu.RUnlock()
	if ref[0] == '~' || filepath.Base(ref) != ref {
		return fsutil.ExpandHome(ref)
	}
	return "", fmt.Errorf("%w: %s", ErrModelNotFound, ref)
}
