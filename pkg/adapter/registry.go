package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/perfettosql/pkg/core"
)

// Factory creates an unconnected backend.
type Factory func(*slog.Logger) Adapter

// BackendInfo describes a registered backend and the PerfettoSQL features it
// can host.
type BackendInfo struct {
	Name string
	// Functions reports support for CREATE PERFETTO FUNCTION with a scalar
	// return type.
	Functions bool
	// TableFunctions reports support for RETURNS TABLE(...) functions.
	TableFunctions bool
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register adds a backend factory under name, which is matched
// case-insensitively. Backends register themselves from init().
func Register(name string, factory Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = factory
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	f, ok := backends[strings.ToLower(name)]
	return f, ok
}

// NewAdapter creates the unconnected backend named by cfg.Type, the
// backend.type setting. A nil logger discards output.
func NewAdapter(cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("backend type not specified")
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	return factory(logger), nil
}

// ListAdapters returns the registered backend names, sorted.
func ListAdapters() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// Backends describes every registered backend, sorted by name. Capabilities
// are read from an unconnected instance of each.
func Backends() []BackendInfo {
	names := ListAdapters()
	out := make([]BackendInfo, 0, len(names))
	for _, name := range names {
		factory, ok := Get(name)
		if !ok {
			continue
		}
		adp := factory(nil)
		_, scalar := adp.(core.FunctionRegistrar)
		_, table := adp.(core.TableFunctionRegistrar)
		out = append(out, BackendInfo{Name: name, Functions: scalar, TableFunctions: table})
	}
	return out
}

// UnknownAdapterError is returned when backend.type names no registered
// backend.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown backend type %q (available: %s); check backend.type in perfettosql.yaml",
		e.Type, strings.Join(e.Available, ", "))
}
