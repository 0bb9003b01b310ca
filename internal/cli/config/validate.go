package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/perfettosql/internal/cli/output"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	if c.MaxRecursionDepth <= 0 {
		return fmt.Errorf("max_recursion_depth must be positive, got %d", c.MaxRecursionDepth)
	}
	if !output.Valid(c.Output) {
		return fmt.Errorf("invalid output format %q\nHint: use one of %s", c.Output, strings.Join(output.Modes, ", "))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for name := range c.Packages {
		if name == "" || strings.ContainsAny(name, "./\\* ") {
			return fmt.Errorf("invalid package name %q", name)
		}
	}
	return nil
}

// Level returns the slog level for the configuration. Verbose forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
