package engine

// handlers.go - one handler per statement variant

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/perfettosql/internal/function"
	"github.com/leapstack-labs/perfettosql/internal/registry"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/leapstack-labs/perfettosql/pkg/token"
	"github.com/leapstack-labs/perfettosql/pkg/tokenizer"
)

func (e *Engine) execute(ctx context.Context, stmt parser.Statement, res *Result) error {
	switch s := stmt.(type) {
	case *parser.Passthrough:
		return e.executePassthrough(ctx, s, res)
	case *parser.CreateFunction:
		return e.executeCreateFunction(ctx, s)
	case *parser.CreateTable:
		return e.executeCreateTable(ctx, s)
	case *parser.CreateView:
		return e.executeCreateView(ctx, s)
	case *parser.CreateMacro:
		return e.executeCreateMacro(s)
	case *parser.CreateIndex:
		return e.executeCreateIndex(ctx, s)
	case *parser.DropIndex:
		return e.executeDropIndex(ctx, s)
	case *parser.IncludeModule:
		return e.executeInclude(ctx, s)
	}
	return source.NewError(source.KindExecution, stmt.Source(), 0, "unsupported statement %s", stmt.Kind())
}

func (e *Engine) executePassthrough(ctx context.Context, s *parser.Passthrough, res *Result) error {
	if blank(s.SQL) {
		return nil
	}
	cols, rows, err := e.queryAt(ctx, s.SQL, s.SQL)
	if err != nil {
		return err
	}
	res.Columns, res.Rows = cols, rows
	return nil
}

// query runs sql on the backend and collects every row. The named
// parameters in nulls are bound to NULL.
func (e *Engine) query(ctx context.Context, sql string, nulls ...string) ([]string, [][]core.Value, error) {
	stmt, err := e.backend.Prepare(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = stmt.Close() }()
	for _, name := range nulls {
		if err := stmt.BindNamed(name, core.Null); err != nil {
			return nil, nil, err
		}
	}

	var rows [][]core.Value
	for {
		ok, err := stmt.Step()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		row := make([]core.Value, stmt.ColumnCount())
		for i := range row {
			row[i] = stmt.Column(i)
		}
		rows = append(rows, row)
	}

	cols := make([]string, stmt.ColumnCount())
	for i := range cols {
		cols[i] = stmt.ColumnName(i)
	}
	return cols, rows, nil
}

// queryAt runs text, reporting backend errors at the start of at.
func (e *Engine) queryAt(ctx context.Context, text, at *source.Text, nulls ...string) ([]string, [][]core.Value, error) {
	cols, rows, err := e.query(ctx, text.Rewritten(), nulls...)
	if err != nil {
		return nil, nil, source.WrapError(source.KindExecution, at, 0, err)
	}
	return cols, rows, nil
}

// exec runs generated SQL, reporting errors at the start of at.
func (e *Engine) exec(ctx context.Context, sql string, at *source.Text) error {
	if _, _, err := e.query(ctx, sql); err != nil {
		return source.WrapError(source.KindExecution, at, 0, err)
	}
	return nil
}

func (e *Engine) registerObject(at *source.Text, obj *registry.Object, replace bool) error {
	obj.Module = e.module
	obj.Source = at
	if err := e.registry.Register(obj, replace); err != nil {
		return source.NewError(source.KindExecution, at, 0, "%s", err.Error())
	}
	return nil
}

func (e *Engine) checkObject(at *source.Text, k registry.Kind, name string, replace bool) error {
	if err := e.registry.Check(k, name, replace); err != nil {
		return source.NewError(source.KindExecution, at, 0, "%s", err.Error())
	}
	return nil
}

// ---------- Functions ----------

func (e *Engine) executeCreateFunction(ctx context.Context, s *parser.CreateFunction) error {
	at := s.Source()
	if e.registrar == nil {
		return source.NewError(source.KindExecution, at, 0,
			"backend %s does not support CREATE PERFETTO FUNCTION", e.backend.DialectName())
	}
	if err := e.checkObject(at, registry.KindFunction, s.Name, s.Replace); err != nil {
		return err
	}
	if s.Returns.IsTable() {
		return e.executeCreateTableFunction(ctx, s)
	}

	body := s.Body
	if s.DelegatesTo != "" {
		body = delegateBody(at.Name(), s)
	}

	fn := function.New(s.Name, function.Signature{Args: s.Args, Returns: s.Returns.Scalar}, body, e.backend, e.functionOptions()...)
	if slices.ContainsFunc(e.cfg.Memoize, func(n string) bool { return strings.EqualFold(n, s.Name) }) {
		if err := fn.EnableMemoization(); err != nil {
			return source.NewError(source.KindExecution, at, 0, "%s", err.Error())
		}
	}

	// The body is prepared after registration so it may call itself. If it
	// does not prepare, the previous implementation is put back.
	key := strings.ToLower(s.Name)
	old := e.functions[key]
	if err := e.registrar.RegisterFunction(s.Name, len(s.Args), fn.Call); err != nil {
		return source.WrapError(source.KindExecution, at, 0, err)
	}
	check, err := e.backend.Prepare(ctx, body.Rewritten())
	if err != nil {
		if old != nil && len(old.Signature().Args) == len(s.Args) {
			if rerr := e.registrar.RegisterFunction(old.Name(), len(s.Args), old.Call); rerr != nil {
				e.logger.Warn("failed to restore function",
					slog.String("function", s.Name), slog.String("error", rerr.Error()))
			}
		}
		return source.WrapError(source.KindExecution, body, 0, err)
	}
	_ = check.Close()

	if old != nil {
		_ = old.Close()
	}
	e.functions[key] = fn

	e.logger.Debug("function created", slog.String("function", s.Name), slog.Int("args", len(s.Args)))
	return e.registerObject(at, &registry.Object{
		Kind:    registry.KindFunction,
		Name:    s.Name,
		Columns: s.Args,
		Returns: s.Returns.Scalar,
	}, s.Replace)
}

// executeCreateTableFunction validates the body of a table-returning
// function against its prototype and exposes it as a table-valued function.
func (e *Engine) executeCreateTableFunction(ctx context.Context, s *parser.CreateFunction) error {
	at := s.Source()
	tr, ok := e.backend.(core.TableFunctionRegistrar)
	if !ok {
		return source.NewError(source.KindExecution, at, 0,
			"backend %s does not support table-returning functions", e.backend.DialectName())
	}
	if s.DelegatesTo != "" {
		return source.NewError(source.KindExecution, at, 0,
			"function %s: table-returning functions cannot delegate", s.Name)
	}
	if err := checkBodyParams(s); err != nil {
		return err
	}

	actual, err := e.validateSchema(ctx, s.Name, nil, s.Body, s.Args...)
	if err != nil {
		return err
	}
	declared := s.Returns.Table
	if len(actual) != len(declared) {
		return source.NewError(source.KindExecution, s.Body, 0,
			"%s: number of return columns %d does not match SQL statement column count %d",
			s.Name, len(declared), len(actual))
	}
	for i, c := range declared {
		if !strings.EqualFold(c.Name, actual[i].Name) {
			return source.NewError(source.KindExecution, s.Body, 0,
				"%s: column %s at index %d does not match return column name %s",
				s.Name, actual[i].Name, i, c.Name)
		}
	}

	tbl := function.NewTable(s.Name, function.TableSignature{Args: s.Args, Columns: declared}, s.Body, e.backend, e.functionOptions()...)
	if err := tr.RegisterTableFunction(ctx, tbl.Describe()); err != nil {
		return source.WrapError(source.KindExecution, at, 0, err)
	}
	e.tables[strings.ToLower(s.Name)] = tbl

	e.logger.Debug("table function created", slog.String("function", s.Name),
		slog.Int("args", len(s.Args)), slog.Int("columns", len(declared)))
	return e.registerObject(at, &registry.Object{
		Kind:          registry.KindFunction,
		Name:          s.Name,
		Columns:       s.Args,
		ReturnColumns: declared,
	}, s.Replace)
}

// checkBodyParams requires every parameter in a table function body to be a
// $-prefixed name from the argument list.
func checkBodyParams(s *parser.CreateFunction) error {
	z := tokenizer.New(s.Body)
	for {
		tok := z.NextNonTrivial()
		if tok.Type == token.EOF {
			return nil
		}
		if tok.Type != token.VARIABLE {
			continue
		}
		fail := func(format string, args ...any) error {
			return source.NewError(source.KindExecution, s.Body, tok.Offset, format, args...)
		}
		switch tok.Text[0] {
		case '?':
			return fail("%s: nameless SQL parameters cannot be used in function bodies; use $-prefixed argument names", s.Name)
		case ':', '@':
			return fail("%s: invalid parameter name %s: parameters must be prefixed with '$' not ':' or '@'", s.Name, tok.Text)
		}
		name := tok.Text[1:]
		if !slices.ContainsFunc(s.Args, func(a parser.Arg) bool { return strings.EqualFold(a.Name, name) }) {
			return fail("%s: parameter %s does not appear in the list of arguments", s.Name, tok.Text)
		}
	}
}

func (e *Engine) functionOptions() []function.Option {
	opts := []function.Option{function.WithLogger(e.logger), function.WithMaxDepth(e.maxDepth())}
	if e.cfg.Strict {
		opts = append(opts, function.WithStrictTypes())
	}
	return opts
}

func (e *Engine) maxDepth() int {
	if e.cfg.MaxRecursionDepth > 0 {
		return e.cfg.MaxRecursionDepth
	}
	return function.DefaultMaxDepth
}

// delegateBody builds `SELECT target($a, $b, ...)`.
func delegateBody(name string, s *parser.CreateFunction) *source.Text {
	b := source.NewBuilder(name)
	b.WriteString("SELECT " + s.DelegatesTo + "(")
	for i, arg := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("$" + arg.Name)
	}
	b.WriteString(")")
	return b.Build()
}

// ---------- Tables and views ----------

func (e *Engine) executeCreateTable(ctx context.Context, s *parser.CreateTable) error {
	at := s.Source()
	if err := e.checkObject(at, registry.KindTable, s.Name, s.Replace); err != nil {
		return err
	}
	cols, err := e.validateSchema(ctx, s.Name, s.Schema, s.Body)
	if err != nil {
		return err
	}

	if s.Replace {
		if err := e.exec(ctx, "DROP TABLE IF EXISTS "+s.Name, at); err != nil {
			return err
		}
		e.registry.Remove(registry.KindTable, s.Name)
	}

	b := source.NewBuilder(at.Name())
	b.WriteString("CREATE TABLE " + s.Name + " AS ")
	b.WriteText(s.Body)
	if _, _, err := e.queryAt(ctx, b.Build(), at); err != nil {
		return err
	}

	return e.registerObject(at, &registry.Object{Kind: registry.KindTable, Name: s.Name, Columns: cols}, s.Replace)
}

func (e *Engine) executeCreateView(ctx context.Context, s *parser.CreateView) error {
	at := s.Source()
	if err := e.checkObject(at, registry.KindView, s.Name, s.Replace); err != nil {
		return err
	}
	cols, err := e.validateSchema(ctx, s.Name, s.Schema, s.Body)
	if err != nil {
		return err
	}

	if s.Replace {
		if err := e.exec(ctx, "DROP VIEW IF EXISTS "+s.Name, at); err != nil {
			return err
		}
	}
	if _, _, err := e.queryAt(ctx, s.CreateViewSQL, s.CreateViewSQL); err != nil {
		return err
	}

	return e.registerObject(at, &registry.Object{Kind: registry.KindView, Name: s.Name, Columns: cols}, s.Replace)
}

// validateSchema compares the declared schema with the columns the body
// returns. With no declared schema the body's columns are returned untyped.
// params are bound to NULL while the body is inspected.
func (e *Engine) validateSchema(ctx context.Context, name string, declared []parser.Column, body *source.Text, params ...parser.Arg) ([]parser.Column, error) {
	b := source.NewBuilder(body.Name())
	b.WriteString("SELECT * FROM (")
	b.WriteText(body)
	b.WriteString(") LIMIT 0")
	nulls := make([]string, len(params))
	for i, p := range params {
		nulls[i] = "$" + p.Name
	}
	actual, _, err := e.queryAt(ctx, b.Build(), body, nulls...)
	if err != nil {
		return nil, err
	}
	if dups := duplicateColumns(actual); len(dups) > 0 {
		return nil, source.NewError(source.KindExecution, body, 0,
			"%s: multiple columns are named: %s", name, strings.Join(dups, ", "))
	}

	if declared == nil {
		cols := make([]parser.Column, len(actual))
		for i, c := range actual {
			cols[i] = parser.Column{Name: c}
		}
		return cols, nil
	}

	var problems []string
	for _, c := range declared {
		if !slices.ContainsFunc(actual, func(a string) bool { return strings.EqualFold(a, c.Name) }) {
			problems = append(problems, fmt.Sprintf("column %s is declared in the schema but not returned by the body", c.Name))
		}
	}
	for _, a := range actual {
		if !slices.ContainsFunc(declared, func(c parser.Column) bool { return strings.EqualFold(a, c.Name) }) {
			problems = append(problems, fmt.Sprintf("column %s is returned by the body but not declared in the schema", a))
		}
	}
	if len(problems) > 0 {
		return nil, source.NewError(source.KindExecution, body, 0, "%s: %s", name, strings.Join(problems, "; "))
	}
	return declared, nil
}

// duplicateColumns returns the names that appear more than once in cols, in
// order of first repetition. SQLite renames repeated columns of a subquery
// to name:N, so that form counts as a repetition of name.
func duplicateColumns(cols []string) []string {
	seen := make(map[string]int, len(cols))
	var dups []string
	for _, c := range cols {
		name := c
		if base, n, ok := strings.Cut(c, ":"); ok && isDigits(n) && seen[strings.ToLower(base)] > 0 {
			name = base
		}
		key := strings.ToLower(name)
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, name)
		}
	}
	return dups
}

func isDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// ---------- Macros ----------

func (e *Engine) executeCreateMacro(s *parser.CreateMacro) error {
	at := s.Source()
	if err := e.macros.Register(s.Macro()); err != nil {
		return source.NewError(source.KindMacro, at, 0, "%s", err.Error())
	}
	e.logger.Debug("macro created", slog.String("macro", s.Name))

	// Macros from modules are recreated by the include.
	if e.store == nil || e.module != "" {
		return nil
	}
	params := make([]core.MacroParam, len(s.Params))
	for i, p := range s.Params {
		params[i] = core.MacroParam{Name: p.Name, Type: p.Type}
	}
	err := e.store.SaveMacro(&core.PersistedMacro{
		Name:       s.Name,
		Params:     params,
		Returns:    s.Returns,
		Body:       s.Body.Rewritten(),
		SourceName: s.Body.Name(),
	})
	if err != nil {
		return source.NewError(source.KindExecution, at, 0, "failed to save macro %s: %v", s.Name, err)
	}
	return nil
}

// ---------- Indexes ----------

func (e *Engine) executeCreateIndex(ctx context.Context, s *parser.CreateIndex) error {
	at := s.Source()
	if err := e.checkObject(at, registry.KindIndex, s.Name, s.Replace); err != nil {
		return err
	}
	if s.Replace {
		if err := e.exec(ctx, "DROP INDEX IF EXISTS "+s.Name, at); err != nil {
			return err
		}
	}
	sql := fmt.Sprintf("CREATE INDEX %s ON %s(%s)", s.Name, s.Table, strings.Join(s.Columns, ", "))
	if err := e.exec(ctx, sql, at); err != nil {
		return err
	}
	return e.registerObject(at, &registry.Object{
		Kind:         registry.KindIndex,
		Name:         s.Name,
		Table:        s.Table,
		IndexColumns: s.Columns,
	}, s.Replace)
}

func (e *Engine) executeDropIndex(ctx context.Context, s *parser.DropIndex) error {
	if err := e.exec(ctx, "DROP INDEX IF EXISTS "+s.Name, s.Source()); err != nil {
		return err
	}
	e.registry.Remove(registry.KindIndex, s.Name)
	return nil
}
