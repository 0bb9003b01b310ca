// Package engine executes PerfettoSQL.
//
// An Engine pulls statements one at a time from the parser and dispatches
// each to its handler. Plain SQL goes to the backend unchanged; PERFETTO
// statements create functions, tables, views, macros and indexes, or include
// modules. An Engine is not safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/perfettosql/internal/dag"
	"github.com/leapstack-labs/perfettosql/internal/function"
	"github.com/leapstack-labs/perfettosql/internal/modules"
	"github.com/leapstack-labs/perfettosql/internal/registry"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/preprocessor"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
	"github.com/leapstack-labs/perfettosql/pkg/tokenizer"
)

// Config holds engine configuration.
type Config struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Strict checks function arguments and results against their declared
	// types.
	Strict bool
	// StrictVariables makes undefined $variables at statement level an
	// error. Function and macro definitions are exempt.
	StrictVariables bool
	// MaxRecursionDepth bounds non-memoized function recursion. Zero uses
	// function.DefaultMaxDepth.
	MaxRecursionDepth int
	// Memoize lists functions to memoize as soon as they are created.
	Memoize []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists macros created by top-level statements.
func WithStore(store core.Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithModules shares a module set between engines.
func WithModules(set *modules.Set) Option {
	return func(e *Engine) { e.modules = set }
}

// Engine executes PerfettoSQL statements against a backend.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	backend   core.Backend
	registrar core.FunctionRegistrar

	macros    *preprocessor.Macros
	registry  *registry.Registry
	modules   *modules.Set
	includes  *dag.Graph[*modules.Module]
	functions map[string]*function.Function
	tables    map[string]*function.Table
	store     core.Store

	// module is the key of the module currently being included.
	module string
}

// ExecutionStats counts the statements run by Execute.
type ExecutionStats struct {
	StatementCount int
	// StatementCountWithOutput counts statements that returned rows. A
	// statement whose only column is suppress_query_output is not counted.
	StatementCountWithOutput int
	// ColumnCount is the column count of the last statement.
	ColumnCount int
}

// Result is the outcome of Execute: statement counts and the columns and
// rows of the last statement.
type Result struct {
	Stats   ExecutionStats
	Columns []string
	Rows    [][]core.Value
}

// suppressOutputColumn marks a statement whose rows are not output.
const suppressOutputColumn = "suppress_query_output"

// New creates an engine over backend. When the backend accepts functions,
// the experimental_memoize builtin is registered.
func New(cfg Config, backend core.Backend, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("engine requires a backend")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		backend:   backend,
		macros:    preprocessor.NewMacros(),
		registry:  registry.New(),
		includes:  dag.NewGraph[*modules.Module](),
		functions: make(map[string]*function.Function),
		tables:    make(map[string]*function.Table),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.modules == nil {
		e.modules = modules.NewSet(logger)
	}

	if r, ok := backend.(core.FunctionRegistrar); ok {
		e.registrar = r
		if err := r.RegisterFunction("experimental_memoize", 1, e.memoize); err != nil {
			return nil, fmt.Errorf("failed to register experimental_memoize: %w", err)
		}
	}

	logger.Debug("engine created", slog.String("backend", backend.DialectName()),
		slog.Bool("functions", e.registrar != nil))
	return e, nil
}

// ExecuteString executes sql, naming it name in tracebacks.
func (e *Engine) ExecuteString(ctx context.Context, name, sql string) (*Result, error) {
	return e.Execute(ctx, source.New(name, sql))
}

// Execute runs every statement in src. It stops at the first error, which is
// always a *source.Error. Input holding no statement at all is an error.
func (e *Engine) Execute(ctx context.Context, src *source.Text) (*Result, error) {
	res, err := e.run(ctx, src)
	if err == nil && res.Stats.StatementCount == 0 {
		return res, source.NewError(source.KindExecution, src, 0, "No valid SQL to run")
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, src *source.Text) (*Result, error) {
	res := &Result{}
	p := parser.New(src, e.macros, e.preprocessorOptions()...)
	for p.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stmt := p.Statement()
		if pt, ok := stmt.(*parser.Passthrough); ok && blank(pt.SQL) {
			continue
		}
		e.logger.Debug("executing statement",
			slog.String("kind", stmt.Kind()), slog.String("source", src.Name()))

		res.Columns, res.Rows = nil, nil
		if err := e.execute(ctx, stmt, res); err != nil {
			return res, err
		}
		res.Stats.StatementCount++
		res.Stats.ColumnCount = len(res.Columns)
		if hasOutput(res) {
			res.Stats.StatementCountWithOutput++
		}
	}
	return res, p.Err()
}

func hasOutput(res *Result) bool {
	if len(res.Rows) == 0 || len(res.Columns) == 0 {
		return false
	}
	return len(res.Columns) != 1 || !strings.EqualFold(res.Columns[0], suppressOutputColumn)
}

// blank reports whether text holds only comments, whitespace and semicolons.
func blank(text *source.Text) bool {
	z := tokenizer.New(text)
	for {
		tok := z.NextNonTrivial()
		switch tok.Type {
		case token.EOF:
			return true
		case token.SEMI:
		default:
			return false
		}
	}
}

// Expand returns every statement of src after macro expansion.
func (e *Engine) Expand(src *source.Text) ([]*source.Text, error) {
	stmts, err := e.Parse(src)
	out := make([]*source.Text, len(stmts))
	for i, s := range stmts {
		out[i] = s.Source()
	}
	return out, err
}

// Parse returns every statement of src without executing them. Macros
// defined in src are registered as they are reached so later statements
// can use them; nothing else touches the backend.
func (e *Engine) Parse(src *source.Text) ([]parser.Statement, error) {
	var out []parser.Statement
	p := parser.New(src, e.macros, e.preprocessorOptions()...)
	for p.Next() {
		stmt := p.Statement()
		if m, ok := stmt.(*parser.CreateMacro); ok {
			if err := e.macros.Register(m.Macro()); err != nil {
				return out, source.NewError(source.KindMacro, stmt.Source(), 0, "%s", err.Error())
			}
		}
		out = append(out, stmt)
	}
	return out, p.Err()
}

func (e *Engine) preprocessorOptions() []preprocessor.Option {
	if e.cfg.StrictVariables {
		return []preprocessor.Option{preprocessor.WithStrictVariables()}
	}
	return nil
}

// RegisterPackage makes the modules under dir includable as name.*.
func (e *Engine) RegisterPackage(name, dir string) error {
	return e.modules.Register(name, dir)
}

// LoadMacros registers the macros saved in the store.
func (e *Engine) LoadMacros() (int, error) {
	if e.store == nil {
		return 0, nil
	}
	saved, err := e.store.ListMacros()
	if err != nil {
		return 0, fmt.Errorf("failed to list macros: %w", err)
	}
	for _, pm := range saved {
		params := make([]preprocessor.MacroParam, len(pm.Params))
		for i, p := range pm.Params {
			params[i] = preprocessor.MacroParam{Name: p.Name, Type: p.Type}
		}
		name := pm.SourceName
		if name == "" {
			name = "macro " + pm.Name
		}
		err := e.macros.Register(&preprocessor.Macro{
			Name:    pm.Name,
			Replace: true,
			Params:  params,
			Returns: pm.Returns,
			Body:    source.New(name, pm.Body),
		})
		if err != nil {
			return 0, fmt.Errorf("failed to load macro %s: %w", pm.Name, err)
		}
	}
	e.logger.Debug("loaded macros", slog.Int("count", len(saved)))
	return len(saved), nil
}

// Macros returns the engine's macro table.
func (e *Engine) Macros() *preprocessor.Macros { return e.macros }

// Registry returns the engine's schema registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Modules returns the engine's module set.
func (e *Engine) Modules() *modules.Set { return e.modules }

// IncludeGraph returns the graph of module includes seen so far.
func (e *Engine) IncludeGraph() *dag.Graph[*modules.Module] { return e.includes }

// Backend returns the engine's backend.
func (e *Engine) Backend() core.Backend { return e.backend }

// Function returns the function named name.
func (e *Engine) Function(name string) (*function.Function, bool) {
	fn, ok := e.functions[strings.ToLower(name)]
	return fn, ok
}

// TableFunction returns the table-returning function named name.
func (e *Engine) TableFunction(name string) (*function.Table, bool) {
	tbl, ok := e.tables[strings.ToLower(name)]
	return tbl, ok
}

// Close releases the statements held by functions. The backend is owned by
// the caller and is not closed.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	for _, fn := range e.functions {
		errs = append(errs, fn.Close())
	}
	e.functions = make(map[string]*function.Function)
	return errors.Join(errs...)
}

// memoize implements experimental_memoize(name).
func (e *Engine) memoize(_ context.Context, args []core.Value) (core.Value, error) {
	if len(args) != 1 || args[0].Kind != core.KindString {
		return core.Null, errors.New("experimental_memoize expects a function name")
	}
	fn, ok := e.Function(args[0].Str)
	if !ok {
		return core.Null, fmt.Errorf("function %s does not exist", args[0].Str)
	}
	if err := fn.EnableMemoization(); err != nil {
		return core.Null, err
	}
	return core.Null, nil
}
