package core

import (
	"context"
	"database/sql"
)

// Backend is the relational engine PerfettoSQL statements run against.
type Backend interface {
	// Prepare compiles one SQL statement.
	Prepare(ctx context.Context, sql string) (Stmt, error)

	// DialectName names the backend's SQL dialect.
	DialectName() string

	// Close releases the backend.
	Close() error
}

// Stmt is a prepared statement. Rows are produced one Step at a time.
type Stmt interface {
	// Bind sets the positional parameter i, starting at 1.
	Bind(i int, v Value) error

	// BindNamed sets a named parameter. The name includes its sigil.
	BindNamed(name string, v Value) error

	// Step advances to the next row. It returns false when the statement
	// is done.
	Step() (bool, error)

	// ColumnCount returns the number of result columns.
	ColumnCount() int

	// ColumnName returns the name of result column i.
	ColumnName(i int) string

	// Column returns column i of the current row.
	Column(i int) Value

	// Reset rewinds the statement so it can be stepped again. Bindings are
	// kept.
	Reset() error

	// Close releases the statement.
	Close() error
}

// ScalarFunc implements a SQL scalar function.
type ScalarFunc func(ctx context.Context, args []Value) (Value, error)

// FunctionRegistrar is implemented by backends that accept user-defined
// scalar functions. nargs of -1 accepts any number of arguments.
type FunctionRegistrar interface {
	RegisterFunction(name string, nargs int, fn ScalarFunc) error
}

// TableFunc implements a table-returning function. It returns every row for
// one set of arguments.
type TableFunc func(ctx context.Context, args []Value) ([][]Value, error)

// TableFunction describes a table-returning function.
type TableFunction struct {
	Name    string
	Args    []string
	Columns []string
	Call    TableFunc
}

// TableFunctionRegistrar is implemented by backends that expose table-returning
// functions as table-valued functions usable in FROM clauses. Registering a
// name again replaces the previous function.
type TableFunctionRegistrar interface {
	RegisterTableFunction(ctx context.Context, fn *TableFunction) error
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Options  map[string]string
	Params   map[string]any
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
