// Package config provides configuration management for the perfettosql CLI.
//
// It extends the shared project configuration from internal/config with
// CLI-specific fields (output, logging, serve and watch settings).
package config

import (
	intconfig "github.com/leapstack-labs/perfettosql/internal/config"
)

// BackendConfig is an alias for the shared backend configuration.
type BackendConfig = intconfig.BackendConfig

// ServeConfig holds configuration for the HTTP query server.
type ServeConfig struct {
	Addr string `koanf:"addr"`
}

// Config holds all CLI configuration options.
type Config struct {
	Backend           *BackendConfig    `koanf:"backend"`
	Packages          map[string]string `koanf:"packages"`
	StatePath         string            `koanf:"state_path"`
	Strict            bool              `koanf:"strict"`
	StrictVariables   bool              `koanf:"strict_variables"`
	Memoize           []string          `koanf:"memoize"`
	MaxRecursionDepth int               `koanf:"max_recursion_depth"`
	Output            string            `koanf:"output"`
	Verbose           bool              `koanf:"verbose"`
	LogLevel          string            `koanf:"log_level"`
	Watch             bool              `koanf:"watch"`
	Serve             ServeConfig       `koanf:"serve"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultOutput    = "auto" // Auto-detect: TTY=table, non-TTY=markdown
	DefaultLogLevel  = "warn"
	DefaultServeAddr = "127.0.0.1:8642"
	DefaultStateFile = ".perfettosql/state.db"
)

// Default returns a configuration with every default applied and no file,
// environment or flag layered on top.
func Default() *Config {
	backend := &BackendConfig{}
	intconfig.ApplyBackendDefaults(backend)
	return &Config{
		Backend:           backend,
		Packages:          map[string]string{},
		MaxRecursionDepth: intconfig.DefaultMaxRecursionDepth,
		Output:            DefaultOutput,
		LogLevel:          DefaultLogLevel,
		Serve:             ServeConfig{Addr: DefaultServeAddr},
	}
}
