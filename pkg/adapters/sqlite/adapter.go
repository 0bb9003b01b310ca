// Package sqlite provides the default SQLite backend, built on the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/leapstack-labs/perfettosql/pkg/core"
)

// DialectName is the name the adapter registers under.
const DialectName = "sqlite"

// Adapter implements adapter.Adapter, core.FunctionRegistrar and
// core.TableFunctionRegistrar for SQLite.
//
// Statements run on a dedicated driver connection rather than the pool so a
// scalar function can query the database while the calling statement is
// still being stepped.
type Adapter struct {
	adapter.BaseSQLAdapter

	dsn    string
	driver driver.Driver
	conn   driver.Conn
	// stale connections were replaced after a function registration but
	// may still back prepared statements.
	stale []driver.Conn
	// visible holds the functions the current connection was opened with.
	visible map[string]bool
	funcs   *functionTable
	// tag names the adapter in table function declarations.
	tag    string
	tables *tableFunctions
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
		funcs:          newFunctionTable(),
		tag:            uuid.NewString(),
		tables:         newTableFunctions(),
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return DialectName
}

// Connect opens the database. An empty path or ":memory:" opens a private
// in-memory database shared by the adapter's connections.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	a.dsn = buildDSN(cfg)
	a.Logger.Debug("connecting to sqlite", slog.String("dsn", a.dsn))

	db, err := sql.Open("sqlite", a.dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.driver = db.Driver()
	return a.reopen()
}

// buildDSN turns the config into a modernc DSN. Options become query
// parameters, e.g. {"_pragma": "foreign_keys(1)"}.
func buildDSN(cfg adapter.Config) string {
	path := cfg.Path
	query := url.Values{}
	if path == "" || path == ":memory:" {
		path = "file:perfettosql-" + uuid.NewString()
		query.Set("mode", "memory")
		query.Set("cache", "shared")
	}
	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Add(k, cfg.Options[k])
	}
	if len(query) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + query.Encode()
}

// reopen replaces the statement connection with a fresh one that sees every
// function registered so far.
func (a *Adapter) reopen() error {
	visible := declaredNames()
	conn, err := a.driver.Open(a.dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	if err := bindConn(conn, a.funcs); err != nil {
		_ = conn.Close()
		return err
	}
	if a.conn != nil {
		a.stale = append(a.stale, a.conn)
	}
	a.conn = conn
	a.visible = visible
	return nil
}

// Prepare compiles sqlStr on the statement connection.
func (a *Adapter) Prepare(ctx context.Context, sqlStr string) (core.Stmt, error) {
	if a.conn == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return adapter.PrepareDriver(ctx, a.conn, sqlStr)
}

// Exec runs sqlStr on the statement connection so it can call the adapter's
// functions.
func (a *Adapter) Exec(ctx context.Context, sqlStr string) error {
	if a.conn == nil {
		return fmt.Errorf("database connection not established")
	}
	execer, ok := a.conn.(driver.ExecerContext)
	if !ok {
		return a.BaseSQLAdapter.Exec(ctx, sqlStr)
	}
	if _, err := execer.ExecContext(ctx, sqlStr, nil); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// RegisterFunction makes fn callable from SQL as name on this adapter's
// statement connection. Other adapters in the process are unaffected.
func (a *Adapter) RegisterFunction(name string, nargs int, fn core.ScalarFunc) error {
	if a.conn == nil {
		return fmt.Errorf("database connection not established")
	}
	key, err := declareFunction(name, nargs)
	if err != nil {
		return err
	}
	a.funcs.set(key, fn)
	if a.visible[key] {
		return nil
	}
	a.Logger.Debug("reopening sqlite connection for new function", slog.String("function", name))
	return a.reopen()
}

// RegisterTableFunction declares fn as a virtual table so that
// fn.Name(args...) can be used in FROM clauses. The arguments are hidden
// columns of the table.
func (a *Adapter) RegisterTableFunction(ctx context.Context, fn *core.TableFunction) error {
	if a.conn == nil {
		return fmt.Errorf("database connection not established")
	}
	if len(fn.Args) > maxTableFunctionArgs {
		return fmt.Errorf("table function %s has %d arguments; at most %d are supported",
			fn.Name, len(fn.Args), maxTableFunctionArgs)
	}

	ownTableFunctions(a.tag, a.tables)
	prev := a.tables.set(fn)
	if prev != nil {
		if err := a.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(fn.Name)); err != nil {
			a.tables.restore(fn.Name, prev)
			return err
		}
	}
	a.Logger.Debug("declaring table function", slog.String("function", fn.Name),
		slog.Int("args", len(fn.Args)), slog.Int("columns", len(fn.Columns)))
	err := a.Exec(ctx, fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s('%s')",
		quoteIdent(fn.Name), tableFunctionModule, a.tag))
	if err != nil {
		// A dropped predecessor cannot come back, so only a first
		// declaration is forgotten.
		if prev == nil {
			a.tables.restore(fn.Name, nil)
		}
		return err
	}
	return nil
}

// Close closes every connection.
func (a *Adapter) Close() error {
	disownTableFunctions(a.tag)
	var errs []error
	for _, c := range append(a.stale, a.conn) {
		if c != nil {
			unbindConn(c)
			errs = append(errs, c.Close())
		}
	}
	a.conn, a.stale = nil, nil
	errs = append(errs, a.BaseSQLAdapter.Close())
	return errors.Join(errs...)
}

var (
	_ adapter.Adapter             = (*Adapter)(nil)
	_ core.FunctionRegistrar      = (*Adapter)(nil)
	_ core.TableFunctionRegistrar = (*Adapter)(nil)
)
