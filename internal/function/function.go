// Package function evaluates CREATE PERFETTO FUNCTION bodies.
//
// A Function prepares its body once per recursion depth and reuses the
// statement for every call made at that depth. Functions with a single
// integer argument and an integer result can be memoized; recursive calls of
// a memoized function are unrolled iteratively instead of re-entering the
// backend once per level.
package function

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/source"
)

// DefaultMaxDepth bounds the recursion depth of non-memoized calls.
const DefaultMaxDepth = 256

// ErrInfiniteRecursion is returned when a memoized call depends on itself.
var ErrInfiniteRecursion = errors.New("infinite recursion detected")

// Signature is a function's argument list and scalar return type.
type Signature struct {
	Args    []parser.Arg
	Returns parser.Type
}

// Option configures a Function.
type Option func(*Function)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Function) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithStrictTypes checks arguments and results against the signature.
func WithStrictTypes() Option {
	return func(f *Function) { f.strict = true }
}

// WithMaxDepth sets the recursion depth limit. Values below 1 disable it.
func WithMaxDepth(n int) Option {
	return func(f *Function) { f.maxDepth = n }
}

// Function is a registered SQL function backed by a SELECT body.
type Function struct {
	name     string
	sig      Signature
	body     *source.Text
	backend  core.Backend
	logger   *slog.Logger
	maxDepth int
	strict   bool

	// stmts[i] is the body prepared for depth i+1.
	stmts []core.Stmt
	depth int

	memoize bool
	memo    map[int64]core.Value
	unroll  *unroller
}

// New creates a function. The body is prepared lazily on first call.
func New(name string, sig Signature, body *source.Text, backend core.Backend, opts ...Option) *Function {
	f := &Function{
		name:     name,
		sig:      sig,
		body:     body,
		backend:  backend,
		logger:   slog.New(slog.DiscardHandler),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the function name.
func (f *Function) Name() string { return f.name }

// Signature returns the function signature.
func (f *Function) Signature() Signature { return f.sig }

// Body returns the function body.
func (f *Function) Body() *source.Text { return f.body }

// EnableMemoization caches results by argument. The function must take a
// single integer argument and return an integer.
func (f *Function) EnableMemoization() error {
	if len(f.sig.Args) != 1 || !f.sig.Args[0].Type.IsInteger() || !f.sig.Returns.IsInteger() {
		return fmt.Errorf("cannot memoize function %s: it must take a single integer argument and return an integer", f.name)
	}
	if f.memo == nil {
		f.memo = make(map[int64]core.Value)
	}
	f.memoize = true
	f.logger.Debug("memoization enabled", slog.String("function", f.name))
	return nil
}

// Memoized returns the cached result for arg.
func (f *Function) Memoized(arg int64) (core.Value, bool) {
	v, ok := f.memo[arg]
	return v, ok
}

// Call evaluates the function.
func (f *Function) Call(ctx context.Context, args []core.Value) (core.Value, error) {
	if len(args) != len(f.sig.Args) {
		return core.Null, fmt.Errorf("function %s expects %d arguments but %d were given", f.name, len(f.sig.Args), len(args))
	}
	if f.strict {
		for i, arg := range f.sig.Args {
			if !typeAccepts(arg.Type, args[i]) {
				return core.Null, source.NewError(source.KindEvaluation, f.body, 0,
					"function %s: argument %s expects %s but got %s", f.name, arg.Name, arg.Type, args[i].Kind)
			}
		}
	}

	key, keyed := f.memoKey(args)
	if keyed {
		if v, ok := f.memo[key]; ok {
			return v, nil
		}
		if f.unroll != nil {
			return f.unroll.query(key)
		}
	}

	stmt, err := f.acquire(ctx)
	if err != nil {
		return core.Null, err
	}
	defer f.release()

	if keyed && f.depth > 1 {
		f.unroll = newUnroller(f, key)
		err := f.unroll.run(ctx, stmt)
		f.unroll = nil
		if err != nil {
			return core.Null, err
		}
		if v, ok := f.memo[key]; ok {
			return v, nil
		}
	}
	return f.evaluate(stmt, args)
}

func (f *Function) memoKey(args []core.Value) (int64, bool) {
	if !f.memoize || args[0].Kind != core.KindInt {
		return 0, false
	}
	return args[0].Int, true
}

// acquire enters one recursion level and returns its statement.
func (f *Function) acquire(ctx context.Context) (core.Stmt, error) {
	if f.maxDepth > 0 && f.depth >= f.maxDepth {
		return nil, fmt.Errorf("function %s: recursion depth limit %d exceeded", f.name, f.maxDepth)
	}
	if f.depth == len(f.stmts) {
		stmt, err := f.backend.Prepare(ctx, f.body.Rewritten())
		if err != nil {
			return nil, source.WrapError(source.KindExecution, f.body, 0, err)
		}
		f.stmts = append(f.stmts, stmt)
	}
	f.depth++
	return f.stmts[f.depth-1], nil
}

func (f *Function) release() {
	f.depth--
	if err := f.stmts[f.depth].Reset(); err != nil {
		f.logger.Warn("failed to reset function statement",
			slog.String("function", f.name), slog.String("error", err.Error()))
	}
}

// evaluate binds args and runs the body to a single value.
func (f *Function) evaluate(stmt core.Stmt, args []core.Value) (core.Value, error) {
	if err := stmt.Reset(); err != nil {
		return core.Null, err
	}
	for i, arg := range f.sig.Args {
		if err := stmt.BindNamed("$"+arg.Name, args[i]); err != nil {
			return core.Null, fmt.Errorf("failed to bind %s of %s: %w", arg.Name, f.name, err)
		}
	}

	ok, err := stmt.Step()
	if err != nil {
		return core.Null, err
	}
	if !ok {
		return core.Null, nil
	}
	if n := stmt.ColumnCount(); n != 1 {
		return core.Null, source.NewError(source.KindEvaluation, f.body, 0,
			"function %s: body must return exactly one column but returned %d", f.name, n)
	}
	v := stmt.Column(0)
	if f.strict && !typeAccepts(f.sig.Returns, v) {
		return core.Null, source.NewError(source.KindEvaluation, f.body, 0,
			"function %s: declared to return %s but returned %s", f.name, f.sig.Returns, v.Kind)
	}

	more, err := stmt.Step()
	if err != nil {
		return core.Null, err
	}
	if more {
		return core.Null, source.NewError(source.KindEvaluation, f.body, 0,
			"function %s: body returned more than one row", f.name)
	}
	return v, nil
}

// Close releases the prepared statements.
func (f *Function) Close() error {
	var errs []error
	for _, stmt := range f.stmts {
		errs = append(errs, stmt.Close())
	}
	f.stmts = nil
	return errors.Join(errs...)
}

// typeAccepts reports whether v may be stored in a column of type t. NULL is
// accepted everywhere and integers widen to DOUBLE.
func typeAccepts(t parser.Type, v core.Value) bool {
	if v.IsNull() {
		return true
	}
	switch {
	case t.IsInteger():
		return v.Kind == core.KindInt
	case t == parser.TypeDouble:
		return v.Kind == core.KindFloat || v.Kind == core.KindInt
	case t == parser.TypeString:
		return v.Kind == core.KindString
	case t == parser.TypeBytes:
		return v.Kind == core.KindBytes
	}
	return true
}
