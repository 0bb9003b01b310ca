// Package state persists run history and CREATE PERFETTO MACRO definitions
// in a SQLite database so later sessions can reload them.
package state

import "github.com/leapstack-labs/perfettosql/pkg/core"

// Ensure SQLiteStore implements core.Store interface
var _ core.Store = (*SQLiteStore)(nil)
