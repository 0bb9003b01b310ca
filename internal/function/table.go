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

// TableSignature is a table-returning function's arguments and columns.
type TableSignature struct {
	Args    []parser.Arg
	Columns []parser.Column
}

// Table is a table-returning function backed by a SELECT body. Every call
// prepares the body afresh, so calls may nest.
type Table struct {
	name    string
	sig     TableSignature
	body    *source.Text
	backend core.Backend
	logger  *slog.Logger
	strict  bool
}

// NewTable creates a table-returning function. WithMaxDepth does not apply.
func NewTable(name string, sig TableSignature, body *source.Text, backend core.Backend, opts ...Option) *Table {
	f := &Function{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(f)
	}
	return &Table{name: name, sig: sig, body: body, backend: backend, logger: f.logger, strict: f.strict}
}

// Name returns the function name.
func (t *Table) Name() string { return t.name }

// Signature returns the function signature.
func (t *Table) Signature() TableSignature { return t.sig }

// Body returns the function body.
func (t *Table) Body() *source.Text { return t.body }

// Describe returns the backend-facing description of the function.
func (t *Table) Describe() *core.TableFunction {
	args := make([]string, len(t.sig.Args))
	for i, a := range t.sig.Args {
		args[i] = a.Name
	}
	cols := make([]string, len(t.sig.Columns))
	for i, c := range t.sig.Columns {
		cols[i] = c.Name
	}
	return &core.TableFunction{Name: t.name, Args: args, Columns: cols, Call: t.Call}
}

// Call runs the body with args bound and returns every row.
func (t *Table) Call(ctx context.Context, args []core.Value) (rows [][]core.Value, err error) {
	if len(args) != len(t.sig.Args) {
		return nil, fmt.Errorf("function %s expects %d arguments but %d were given", t.name, len(t.sig.Args), len(args))
	}
	if t.strict {
		for i, arg := range t.sig.Args {
			if !typeAccepts(arg.Type, args[i]) {
				return nil, source.NewError(source.KindEvaluation, t.body, 0,
					"function %s: argument %s expects %s but got %s", t.name, arg.Name, arg.Type, args[i].Kind)
			}
		}
	}

	stmt, err := t.backend.Prepare(ctx, t.body.Rewritten())
	if err != nil {
		return nil, source.WrapError(source.KindExecution, t.body, 0, err)
	}
	defer func() { err = errors.Join(err, stmt.Close()) }()

	for i, arg := range t.sig.Args {
		if err := stmt.BindNamed("$"+arg.Name, args[i]); err != nil {
			return nil, fmt.Errorf("failed to bind %s of %s: %w", arg.Name, t.name, err)
		}
	}

	for {
		ok, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if n := stmt.ColumnCount(); n != len(t.sig.Columns) {
			return nil, source.NewError(source.KindEvaluation, t.body, 0,
				"function %s: body returned %d columns but %d are declared", t.name, n, len(t.sig.Columns))
		}
		row := make([]core.Value, len(t.sig.Columns))
		for i, col := range t.sig.Columns {
			v := stmt.Column(i)
			if t.strict && !typeAccepts(col.Type, v) {
				return nil, source.NewError(source.KindEvaluation, t.body, 0,
					"function %s: column %s is declared %s but returned %s", t.name, col.Name, col.Type, v.Kind)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	t.logger.Debug("table function evaluated", slog.String("function", t.name), slog.Int("rows", len(rows)))
	return rows, nil
}
