// Package registry tracks the schema objects created by PerfettoSQL
// statements: tables, views, functions and indexes. Names are matched
// case-insensitively, like SQLite does.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"golang.org/x/text/cases"
)

// Kind is the kind of a schema object.
type Kind int

// Object kinds.
const (
	KindTable Kind = iota + 1
	KindView
	KindFunction
	KindIndex
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindView:
		return "view"
	case KindFunction:
		return "function"
	case KindIndex:
		return "index"
	}
	return "unknown"
}

// Object is one registered schema object.
type Object struct {
	Kind Kind
	Name string

	// Columns is the declared schema of a table or view, or the argument list
	// of a function.
	Columns []parser.Column
	// Returns is the scalar return type of a function.
	Returns parser.Type
	// ReturnColumns is the result schema of a table-returning function.
	ReturnColumns []parser.Column
	// Table and IndexColumns describe an index.
	Table        string
	IndexColumns []string

	// Module is the key of the module that created the object, if any.
	Module string
	Source *source.Text
}

// ExistsError reports an attempt to create an object that already exists.
type ExistsError struct {
	Kind     Kind
	Name     string
	Existing Kind
}

func (e *ExistsError) Error() string {
	if e.Kind != e.Existing {
		return fmt.Sprintf("%s %s already exists as a %s", e.Kind, e.Name, e.Existing)
	}
	return fmt.Sprintf("%s %s already exists", e.Kind, e.Name)
}

// Registry maps names to schema objects. Tables, views and indexes share one
// namespace; functions have their own.
type Registry struct {
	mu        sync.RWMutex
	relations map[string]*Object
	functions map[string]*Object
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		relations: make(map[string]*Object),
		functions: make(map[string]*Object),
	}
}

func fold(name string) string {
	return cases.Fold().String(name)
}

func (r *Registry) namespace(k Kind) map[string]*Object {
	if k == KindFunction {
		return r.functions
	}
	return r.relations
}

// Check reports whether an object of kind k named name may be created. An
// existing object of the same kind may be replaced when replace is set.
func (r *Registry) Check(k Kind, name string, replace bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check(k, name, replace)
}

func (r *Registry) check(k Kind, name string, replace bool) error {
	existing, ok := r.namespace(k)[fold(name)]
	if !ok {
		return nil
	}
	if existing.Kind != k || !replace {
		return &ExistsError{Kind: k, Name: name, Existing: existing.Kind}
	}
	return nil
}

// Register adds obj, replacing an object of the same kind when replace is set.
func (r *Registry) Register(obj *Object, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(obj.Kind, obj.Name, replace); err != nil {
		return err
	}
	r.namespace(obj.Kind)[fold(obj.Name)] = obj
	return nil
}

// Remove deletes the object of kind k named name.
func (r *Registry) Remove(k Kind, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns := r.namespace(k)
	key := fold(name)
	if obj, ok := ns[key]; !ok || obj.Kind != k {
		return false
	}
	delete(ns, key)

	// Indexes go away with their table.
	if k == KindTable {
		for ik, obj := range r.relations {
			if obj.Kind == KindIndex && fold(obj.Table) == key {
				delete(r.relations, ik)
			}
		}
	}
	return true
}

// Lookup returns the object of kind k named name.
func (r *Registry) Lookup(k Kind, name string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.namespace(k)[fold(name)]
	if !ok || obj.Kind != k {
		return nil, false
	}
	return obj, true
}

// Objects returns every object of kind k sorted by name.
func (r *Registry) Objects(k Kind) []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Object
	for _, obj := range r.namespace(k) {
		if obj.Kind == k {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return fold(out[i].Name) < fold(out[j].Name)
	})
	return out
}

// Indexes returns the indexes on table sorted by name.
func (r *Registry) Indexes(table string) []*Object {
	var out []*Object
	for _, obj := range r.Objects(KindIndex) {
		if fold(obj.Table) == fold(table) {
			out = append(out, obj)
		}
	}
	return out
}

// Count returns the number of registered objects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.relations) + len(r.functions)
}
