// Package adapter provides the backend registry and the database/sql
// plumbing shared by concrete backends.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves from init().
package adapter

import (
	"context"

	"github.com/leapstack-labs/perfettosql/pkg/core"
)

type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// Adapter is a core.Backend reached through a database connection.
type Adapter interface {
	core.Backend

	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Exec executes a SQL statement that doesn't return rows (e.g., INSERT, UPDATE, CREATE).
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)
}
