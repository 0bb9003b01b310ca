package adapter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/core"
)

// bindings collects positional and named parameters for one statement.
type bindings struct {
	positional []any
	named      map[string]any
}

func (b *bindings) bind(i int, v core.Value) error {
	if i < 1 {
		return fmt.Errorf("invalid parameter index %d", i)
	}
	for len(b.positional) < i {
		b.positional = append(b.positional, nil)
	}
	b.positional[i-1] = v.Any()
	return nil
}

func (b *bindings) bindNamed(name string, v core.Value) error {
	name = strings.TrimLeft(name, "$:@")
	if name == "" {
		return fmt.Errorf("invalid parameter name")
	}
	if b.named == nil {
		b.named = make(map[string]any)
	}
	b.named[name] = v.Any()
	return nil
}

func (b *bindings) names() []string {
	names := make([]string, 0, len(b.named))
	for name := range b.named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *bindings) args() []any {
	args := append([]any(nil), b.positional...)
	for _, name := range b.names() {
		args = append(args, sql.Named(name, b.named[name]))
	}
	return args
}

func (b *bindings) namedValues() []driver.NamedValue {
	nv := make([]driver.NamedValue, 0, len(b.positional)+len(b.named))
	for i, v := range b.positional {
		nv = append(nv, driver.NamedValue{Ordinal: i + 1, Value: v})
	}
	for i, name := range b.names() {
		nv = append(nv, driver.NamedValue{Name: name, Ordinal: len(b.positional) + i + 1, Value: b.named[name]})
	}
	return nv
}

// SQLStmt adapts a database/sql prepared statement to core.Stmt. The query
// runs on the first Step; column names are known from then on.
type SQLStmt struct {
	ctx  context.Context
	stmt *sql.Stmt
	bindings

	rows *sql.Rows
	cols []string
	row  []any
	done bool
}

// PrepareSQL prepares query on db.
func PrepareSQL(ctx context.Context, db *sql.DB, query string) (*SQLStmt, error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return &SQLStmt{ctx: ctx, stmt: stmt}, nil
}

// Bind sets positional parameter i.
func (s *SQLStmt) Bind(i int, v core.Value) error { return s.bind(i, v) }

// BindNamed sets a named parameter.
func (s *SQLStmt) BindNamed(name string, v core.Value) error { return s.bindNamed(name, v) }

// Step advances to the next row.
func (s *SQLStmt) Step() (bool, error) {
	if s.done {
		return false, nil
	}
	if s.rows == nil {
		//nolint:rowserrcheck // checked when iteration ends
		rows, err := s.stmt.QueryContext(s.ctx, s.args()...)
		if err != nil {
			return false, fmt.Errorf("failed to execute query: %w", err)
		}
		cols, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			return false, fmt.Errorf("failed to read columns: %w", err)
		}
		s.rows, s.cols = rows, cols
	}

	if !s.rows.Next() {
		s.done = true
		if err := s.rows.Err(); err != nil {
			return false, fmt.Errorf("error iterating rows: %w", err)
		}
		return false, nil
	}
	s.row = make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range s.row {
		ptrs[i] = &s.row[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return false, fmt.Errorf("failed to scan row: %w", err)
	}
	return true, nil
}

// ColumnCount returns the number of result columns.
func (s *SQLStmt) ColumnCount() int { return len(s.cols) }

// ColumnName returns the name of result column i.
func (s *SQLStmt) ColumnName(i int) string { return s.cols[i] }

// Column returns column i of the current row.
func (s *SQLStmt) Column(i int) core.Value { return toValue(s.row[i]) }

// Reset rewinds the statement.
func (s *SQLStmt) Reset() error {
	s.row, s.done = nil, false
	if s.rows == nil {
		return nil
	}
	err := s.rows.Close()
	s.rows = nil
	return err
}

// Close releases the statement.
func (s *SQLStmt) Close() error {
	return errors.Join(s.Reset(), s.stmt.Close())
}

// DriverStmt adapts a driver-level statement to core.Stmt. It bypasses the
// database/sql connection pool so that scalar functions can run queries on
// the same connection while an outer statement is being stepped.
type DriverStmt struct {
	ctx  context.Context
	stmt driver.Stmt
	bindings

	rows driver.Rows
	cols []string
	row  []driver.Value
	done bool
}

// PrepareDriver prepares query directly on a driver connection.
func PrepareDriver(ctx context.Context, conn driver.Conn, query string) (*DriverStmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if pc, ok := conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = conn.Prepare(query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return &DriverStmt{ctx: ctx, stmt: stmt}, nil
}

// Bind sets positional parameter i.
func (s *DriverStmt) Bind(i int, v core.Value) error { return s.bind(i, v) }

// BindNamed sets a named parameter.
func (s *DriverStmt) BindNamed(name string, v core.Value) error { return s.bindNamed(name, v) }

// Step advances to the next row.
func (s *DriverStmt) Step() (bool, error) {
	if s.done {
		return false, nil
	}
	if s.rows == nil {
		qc, ok := s.stmt.(driver.StmtQueryContext)
		if !ok {
			return false, fmt.Errorf("driver statement does not support QueryContext")
		}
		rows, err := qc.QueryContext(s.ctx, s.namedValues())
		if err != nil {
			return false, fmt.Errorf("failed to execute query: %w", err)
		}
		s.rows = rows
		s.cols = rows.Columns()
		s.row = make([]driver.Value, len(s.cols))
	}

	if err := s.rows.Next(s.row); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("error iterating rows: %w", err)
	}
	return true, nil
}

// ColumnCount returns the number of result columns.
func (s *DriverStmt) ColumnCount() int { return len(s.cols) }

// ColumnName returns the name of result column i.
func (s *DriverStmt) ColumnName(i int) string { return s.cols[i] }

// Column returns column i of the current row.
func (s *DriverStmt) Column(i int) core.Value { return toValue(s.row[i]) }

// Reset rewinds the statement.
func (s *DriverStmt) Reset() error {
	s.done = false
	if s.rows == nil {
		return nil
	}
	err := s.rows.Close()
	s.rows = nil
	return err
}

// Close releases the statement.
func (s *DriverStmt) Close() error {
	return errors.Join(s.Reset(), s.stmt.Close())
}

func toValue(x any) core.Value {
	v, err := core.FromAny(x)
	if err != nil {
		return core.StringValue(fmt.Sprint(x))
	}
	return v
}

var (
	_ core.Stmt = (*SQLStmt)(nil)
	_ core.Stmt = (*DriverStmt)(nil)
)
