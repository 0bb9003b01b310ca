// Package sqlite provides the default SQLite backend, built on the pure Go
// modernc.org/sqlite driver.
//
// This file registers the SQLite adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/perfettosql/pkg/adapters/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/perfettosql/pkg/adapter"
)

func init() {
	adapter.Register(DialectName, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
