// Package config provides the shared configuration types for perfettosql.
// It is decoupled from CLI concerns so the server and tests can load a
// project configuration without cobra.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/leapstack-labs/perfettosql/pkg/core"
)

// BackendConfig holds the database the engine runs statements on.
type BackendConfig struct {
	Type string `koanf:"type"` // sqlite, duckdb, postgres

	// File-based databases (SQLite, DuckDB)
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the backend configuration for adapter.Connect.
func (b *BackendConfig) AdapterConfig() adapter.Config {
	return core.AdapterConfig{
		Type:     strings.ToLower(b.Type),
		Path:     b.Path,
		Host:     b.Host,
		Port:     b.Port,
		Database: b.Database,
		Username: b.User,
		Password: b.Password,
		Options:  b.Options,
		Params:   b.Params,
	}
}

// Validate checks if the backend configuration is valid.
// It uses the adapter registry to determine which backend types are available.
func (b *BackendConfig) Validate() error {
	if b.Type == "" {
		return fmt.Errorf("backend type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(b.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      b.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// ProjectConfig holds the configuration needed to build an engine.
type ProjectConfig struct {
	Backend           *BackendConfig    `koanf:"backend"`
	Packages          map[string]string `koanf:"packages"`
	StatePath         string            `koanf:"state_path"`
	Strict            bool              `koanf:"strict"`
	StrictVariables   bool              `koanf:"strict_variables"`
	Memoize           []string          `koanf:"memoize"`
	MaxRecursionDepth int               `koanf:"max_recursion_depth"`
}
