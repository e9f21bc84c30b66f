package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sessiond/internal/common/fsutil"
	"sessiond/pkg/types"
)

// DefaultExtensions are the model file formats the engines accept.
var DefaultExtensions = []string{".gguf", ".bin", ".task"}

// Scanner discovers model files in a directory.
type Scanner interface {
	Scan(dir string) ([]types.Model, error)
}

type extScanner struct {
	exts []string
}

// NewScanner returns a Scanner matching the given extensions, case-insensitively.
// With no extensions it uses DefaultExtensions.
func NewScanner(exts ...string) Scanner {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, e)
	}
	return &extScanner{exts: norm}
}

// NewGGUFScanner returns a Scanner for *.gguf files only.
func NewGGUFScanner() Scanner { return NewScanner(".gguf") }

// Scan lists matching regular files in dir, sorted by ID. ID is the full file
// name, Name drops the extension, Path is absolute.
func (s *extScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.ExpandAbs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !s.match(ext) {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		models = append(models, types.Model{
			ID:        name,
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			Path:      filepath.Join(abs, name),
			SizeBytes: size,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func (s *extScanner) match(ext string) bool {
	for _, e := range s.exts {
		if e == ext {
			return true
		}
	}
	return false
}

// LoadDir scans dir with the default extensions.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}
