// Package duckdb provides a DuckDB backend for PerfettoSQL.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB. It does not
// accept user-defined functions, so CREATE PERFETTO FUNCTION is rejected by
// the engine on this backend.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB and applies the extensions,
// settings and secrets from cfg.Params.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	// Settings and loaded extensions are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg

	if err := a.applyParams(ctx, params); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}
	return nil
}

func (a *Adapter) applyParams(ctx context.Context, params *Params) error {
	for _, ext := range params.Extensions {
		a.Logger.Debug("loading duckdb extension", slog.String("extension", ext))
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	keys := make([]string, 0, len(params.Settings))
	for k := range params.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmt := fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(params.Settings[k], "'", "''"))
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}

	for _, secret := range params.Secrets {
		if err := a.Exec(ctx, buildCreateSecretSQL(secret)); err != nil {
			return fmt.Errorf("failed to create %s secret: %w", secret.Type, err)
		}
	}
	return nil
}

// buildCreateSecretSQL renders a CREATE SECRET statement.
func buildCreateSecretSQL(cfg SecretConfig) string {
	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

	parts := []string{"TYPE " + cfg.Type}
	if cfg.Provider != "" {
		parts = append(parts, "PROVIDER "+cfg.Provider)
	}
	if cfg.Region != "" {
		parts = append(parts, "REGION "+quote(cfg.Region))
	}
	switch scope := cfg.Scope.(type) {
	case string:
		parts = append(parts, "SCOPE "+quote(scope))
	case []string:
		quoted := make([]string, len(scope))
		for i, s := range scope {
			quoted[i] = quote(s)
		}
		parts = append(parts, "SCOPE ("+strings.Join(quoted, ", ")+")")
	case []any:
		quoted := make([]string, len(scope))
		for i, s := range scope {
			quoted[i] = quote(fmt.Sprint(s))
		}
		parts = append(parts, "SCOPE ("+strings.Join(quoted, ", ")+")")
	}
	if cfg.KeyID != "" {
		parts = append(parts, "KEY_ID "+quote(cfg.KeyID))
	}
	if cfg.Secret != "" {
		parts = append(parts, "SECRET "+quote(cfg.Secret))
	}
	if cfg.Endpoint != "" {
		parts = append(parts, "ENDPOINT "+quote(cfg.Endpoint))
	}
	if cfg.URLStyle != "" {
		parts = append(parts, "URL_STYLE "+quote(cfg.URLStyle))
	}
	if cfg.UseSSL != nil {
		parts = append(parts, fmt.Sprintf("USE_SSL %t", *cfg.UseSSL))
	}
	return "CREATE SECRET (\n    " + strings.Join(parts, ",\n    ") + "\n)"
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
