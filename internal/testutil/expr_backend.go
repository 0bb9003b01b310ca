package testutil

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/spf13/cast"
)

var (
	selectPattern   = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)(?:\s+AS\s+([A-Za-z_][A-Za-z0-9_]*))?\s*;?\s*$`)
	variablePattern = regexp.MustCompile(`[$:@]([A-Za-z_][A-Za-z0-9_]*)`)
)

// ExprBackend is an in-process core.Backend that evaluates statements of the
// form "SELECT <expression> [AS name]" with expr-lang. $name variables become
// expression variables and positional bindings are visible as _1, _2, ...
// Registered scalar functions are callable from expressions, so recursive
// functions can re-enter the backend without a database.
type ExprBackend struct {
	mu        sync.Mutex
	functions map[string]core.ScalarFunc
	prepared  int
	closed    bool
}

// NewExprBackend creates an empty ExprBackend.
func NewExprBackend() *ExprBackend {
	return &ExprBackend{functions: make(map[string]core.ScalarFunc)}
}

// DialectName implements core.Backend.
func (b *ExprBackend) DialectName() string { return "expr" }

// Close implements core.Backend.
func (b *ExprBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Prepared returns how many statements have been prepared.
func (b *ExprBackend) Prepared() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prepared
}

// RegisterFunction implements core.FunctionRegistrar. nargs is not enforced.
func (b *ExprBackend) RegisterFunction(name string, _ int, fn core.ScalarFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.functions[strings.ToLower(name)] = fn
	return nil
}

// Prepare implements core.Backend.
func (b *ExprBackend) Prepare(ctx context.Context, sql string) (core.Stmt, error) {
	m := selectPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, fmt.Errorf("unsupported statement: %q", strings.TrimSpace(sql))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	b.prepared++

	name := m[2]
	if name == "" {
		name = strings.TrimSpace(m[1])
	}
	return &exprStmt{
		ctx:     ctx,
		backend: b,
		code:    variablePattern.ReplaceAllString(m[1], "$1"),
		column:  name,
		vars:    make(map[string]any),
	}, nil
}

func (b *ExprBackend) options(ctx context.Context, vars map[string]any) []expr.Option {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := []expr.Option{expr.Env(vars)}
	for name, fn := range b.functions {
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			args := make([]core.Value, len(params))
			for i, p := range params {
				v, err := toValue(p)
				if err != nil {
					return nil, err
				}
				args[i] = v
			}
			out, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			return out.Any(), nil
		}))
	}
	return opts
}

type exprStmt struct {
	ctx     context.Context
	backend *ExprBackend
	code    string
	column  string
	vars    map[string]any

	result core.Value
	done   bool
	closed bool
}

func (s *exprStmt) Bind(i int, v core.Value) error {
	if i < 1 {
		return fmt.Errorf("bind index %d out of range", i)
	}
	s.vars["_"+strconv.Itoa(i)] = v.Any()
	return nil
}

func (s *exprStmt) BindNamed(name string, v core.Value) error {
	s.vars[strings.TrimLeft(name, "$:@")] = v.Any()
	return nil
}

func (s *exprStmt) Step() (bool, error) {
	if s.closed {
		return false, fmt.Errorf("statement is closed")
	}
	if s.done {
		return false, nil
	}
	s.done = true

	program, err := expr.Compile(s.code, s.backend.options(s.ctx, s.vars)...)
	if err != nil {
		return false, fmt.Errorf("failed to compile %q: %w", s.code, err)
	}
	out, err := expr.Run(program, s.vars)
	if err != nil {
		return false, err
	}
	s.result, err = toValue(out)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *exprStmt) ColumnCount() int { return 1 }

func (s *exprStmt) ColumnName(i int) string {
	if i != 0 {
		return ""
	}
	return s.column
}

func (s *exprStmt) Column(i int) core.Value {
	if i != 0 {
		return core.Null
	}
	return s.result
}

func (s *exprStmt) Reset() error {
	s.done = false
	s.result = core.Null
	return nil
}

func (s *exprStmt) Close() error {
	s.closed = true
	return nil
}

func toValue(x any) (core.Value, error) {
	switch v := x.(type) {
	case nil:
		return core.Null, nil
	case core.Value:
		return v, nil
	case string:
		return core.StringValue(v), nil
	case []byte:
		return core.BytesValue(v), nil
	case float32, float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return core.Null, err
		}
		return core.FloatValue(f), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return core.Null, err
		}
		return core.IntValue(n), nil
	}
	return core.Null, fmt.Errorf("unsupported expression result %T", x)
}

var (
	_ core.Backend           = (*ExprBackend)(nil)
	_ core.FunctionRegistrar = (*ExprBackend)(nil)
)
