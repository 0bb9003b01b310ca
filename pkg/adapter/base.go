package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/perfettosql/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query and Prepare implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

// Prepare compiles sqlStr on the connection pool.
func (b *BaseSQLAdapter) Prepare(ctx context.Context, sqlStr string) (core.Stmt, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return PrepareSQL(ctx, b.DB, sqlStr)
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}
