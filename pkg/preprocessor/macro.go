package preprocessor

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/source"
)

// Macro errors.
var (
	ErrMacroExists   = errors.New("macro already exists")
	ErrBuiltinMacro  = errors.New("cannot redefine builtin macro")
	ErrInvalidParams = errors.New("invalid macro parameters")
)

// MacroParam is a named, typed macro parameter.
type MacroParam struct {
	Name string
	Type string
}

// Macro is a user-defined SQL text template.
type Macro struct {
	Name    string
	Replace bool
	Params  []MacroParam
	Returns string
	Body    *source.Text
}

// paramTypes are the accepted macro parameter and return types, upper-cased.
var paramTypes = map[string]bool{
	"EXPR":               true,
	"TABLEORSUBQUERY":    true,
	"COLUMNNAME":         true,
	"COLUMNNAMELIST":     true,
	"PROJECTIONFRAGMENT": true,
	"SQLFRAGMENT":        true,
	"TABLENAMELIST":      true,
}

// IsValidParamType reports whether typ names a macro parameter type. A
// leading underscore marks internal variants of the same types.
func IsValidParamType(typ string) bool {
	return paramTypes[strings.ToUpper(strings.TrimPrefix(typ, "_"))]
}

var builtins = map[string]bool{
	"stringify":              true,
	"stringify_ignore_table": true,
	"token_apply":            true,
	"token_apply_prefix":     true,
	"token_apply_and":        true,
	"token_apply_and_prefix": true,
}

// IsBuiltin reports whether name is a builtin macro.
func IsBuiltin(name string) bool {
	return builtins[name]
}

// Macros is the table of user macros visible to a preprocessor. It is not
// safe for concurrent use; each engine owns one.
type Macros struct {
	byName map[string]*Macro
}

// NewMacros returns an empty macro table.
func NewMacros() *Macros {
	return &Macros{byName: make(map[string]*Macro)}
}

// Register adds m to the table. An existing macro with the same name is
// only replaced when m.Replace is set.
func (t *Macros) Register(m *Macro) error {
	if IsBuiltin(m.Name) {
		return fmt.Errorf("%w: %s", ErrBuiltinMacro, m.Name)
	}
	seen := make(map[string]bool, len(m.Params))
	for _, p := range m.Params {
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate parameter %s in macro %s", ErrInvalidParams, p.Name, m.Name)
		}
		seen[p.Name] = true
	}
	if _, ok := t.byName[m.Name]; ok && !m.Replace {
		return fmt.Errorf("%w: %s", ErrMacroExists, m.Name)
	}
	t.byName[m.Name] = m
	return nil
}

// Lookup returns the macro called name.
func (t *Macros) Lookup(name string) (*Macro, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Remove deletes the macro called name and reports whether it existed.
func (t *Macros) Remove(name string) bool {
	_, ok := t.byName[name]
	delete(t.byName, name)
	return ok
}

// Names returns the registered macro names in sorted order.
func (t *Macros) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered macros.
func (t *Macros) Len() int {
	return len(t.byName)
}
