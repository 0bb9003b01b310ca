// Package modules loads PerfettoSQL module packages from disk.
//
// A package is a directory registered under a name. Every .sql file below it
// is a module whose key is the package name followed by the file's relative
// path, with separators replaced by dots and the extension dropped:
// package "std" at dir/ maps dir/slices/core.sql to "std.slices.core".
package modules

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/perfettosql/pkg/source"
)

// Module is one .sql file of a package.
type Module struct {
	Key     string
	Package string
	Path    string
	SQL     string
}

// Text returns the module source for the preprocessor.
func (m *Module) Text() *source.Text {
	return source.New(m.Key, m.SQL)
}

// Package is a registered module directory.
type Package struct {
	Name string
	Dir  string
}

// Set holds the registered packages and tracks which modules have been
// included. It is safe for concurrent use.
type Set struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	packages map[string]*Package
	modules  map[string]*Module
	byPath   map[string]string
	included map[string]bool
}

// NewSet creates an empty set. If logger is nil, a discard logger is used.
func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Set{
		logger:   logger,
		packages: make(map[string]*Package),
		modules:  make(map[string]*Module),
		byPath:   make(map[string]string),
		included: make(map[string]bool),
	}
}

// Register scans dir and adds its modules under the package name.
func (s *Set) Register(name, dir string) error {
	if err := validateSegment(name); err != nil {
		return fmt.Errorf("invalid package name: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve package directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to access package directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("package path is not a directory: %s", dir)
	}

	var loaded []*Module
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != abs {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".sql" {
			return nil
		}
		m, err := loadFile(name, abs, path)
		if err != nil {
			return err
		}
		loaded = append(loaded, m)
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.packages[name]; exists {
		return fmt.Errorf("package %s is already registered", name)
	}
	s.packages[name] = &Package{Name: name, Dir: abs}
	for _, m := range loaded {
		s.modules[m.Key] = m
		s.byPath[m.Path] = m.Key
	}

	s.logger.Debug("registered package",
		slog.String("package", name), slog.String("dir", abs), slog.Int("modules", len(loaded)))
	return nil
}

// AllModules is the include key matching every module.
const AllModules = "*"

// Resolve returns the modules matching key. A key ending in ".*" matches
// every module below that prefix, in key order. The key "*" matches every
// module of every package and may match nothing.
func (s *Set) Resolve(key string) ([]*Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key == AllModules {
		out := make([]*Module, 0, len(s.modules))
		for _, m := range s.modules {
			out = append(out, m)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out, nil
	}

	pkg, _, _ := strings.Cut(key, ".")
	if _, ok := s.packages[pkg]; !ok {
		return nil, fmt.Errorf("unknown package %q", pkg)
	}

	if prefix, ok := strings.CutSuffix(key, "*"); ok {
		var out []*Module
		for k, m := range s.modules {
			if strings.HasPrefix(k, prefix) {
				out = append(out, m)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no modules match %s", key)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out, nil
	}

	m, ok := s.modules[key]
	if !ok {
		return nil, fmt.Errorf("module %s not found", key)
	}
	return []*Module{m}, nil
}

// Module returns the module with the given key.
func (s *Set) Module(key string) (*Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[key]
	return m, ok
}

// Packages returns the registered packages sorted by name.
func (s *Set) Packages() []*Package {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Package, 0, len(s.packages))
	for _, p := range s.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Modules returns every module sorted by key.
func (s *Set) Modules() []*Module {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// MarkIncluded marks key as included. It reports false if it already was.
func (s *Set) MarkIncluded(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.included[key] {
		return false
	}
	s.included[key] = true
	return true
}

// Included reports whether key has been included.
func (s *Set) Included(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.included[key]
}

// Unmark clears the included flag of key so the next include runs it again.
func (s *Set) Unmark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.included, key)
}

// Reload re-reads the module stored at path, adding it if the file is new.
// The module is marked not included.
func (s *Set) Reload(path string) (*Module, error) {
	pkg := s.packageFor(path)
	if pkg == nil {
		return nil, fmt.Errorf("%s is not inside a registered package", path)
	}
	m, err := loadFile(pkg.Name, pkg.Dir, path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[m.Key] = m
	s.byPath[m.Path] = m.Key
	delete(s.included, m.Key)
	return m, nil
}

// Forget removes the module stored at path.
func (s *Set) Forget(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byPath[abs]
	if !ok {
		return "", false
	}
	delete(s.byPath, abs)
	delete(s.modules, key)
	delete(s.included, key)
	return key, true
}

func (s *Set) packageFor(path string) *Package {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.packages {
		if rel, err := filepath.Rel(p.Dir, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return p
		}
	}
	return nil
}

func loadFile(pkg, root, path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	segments := strings.Split(filepath.ToSlash(strings.TrimSuffix(rel, ".sql")), "/")
	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return nil, &LoadError{File: path, Message: err.Error()}
		}
	}

	content, err := os.ReadFile(abs) //nolint:gosec // G304: path is inside a registered package directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	return &Module{
		Key:     pkg + "." + strings.Join(segments, "."),
		Package: pkg,
		Path:    abs,
		SQL:     string(content),
	}, nil
}

// validateSegment checks one dotted component of a module key.
func validateSegment(name string) error {
	if name == "" {
		return fmt.Errorf("module key segment cannot be empty")
	}
	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("module key segment must start with letter or underscore: %s", name)
			}
		} else if !isLetter(r) && !isDigit(r) && r != '_' {
			return fmt.Errorf("module key segment contains invalid character: %s", name)
		}
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError represents an error loading a module file.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}
