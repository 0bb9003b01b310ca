package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	intconfig "github.com/leapstack-labs/perfettosql/internal/config"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// EnvPrefix is the prefix of environment variables read as configuration.
const EnvPrefix = "PERFETTOSQL_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var (
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names whose config key is not the snake_case form of
// the flag name.
var flagKeys = map[string]string{
	"backend":  "backend.type",
	"database": "backend.path",
	"state":    "state_path",
	"package":  "packages",
	"addr":     "serve.addr",
}

// ResetConfig forgets the loaded configuration. Used for testing.
func ResetConfig() {
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from defaults, the config file, environment
// variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	// An explicit config file anchors the project root; otherwise search
	// upward from the working directory.
	projectRoot := cwd
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config file: %w", err)
		}
		cfgFile = abs
		projectRoot = filepath.Dir(abs)
	} else if root := intconfig.FindProjectRoot(cwd, maxUpwardSearchLevels); root != "" {
		projectRoot = root
		cfgFile = intconfig.FindConfigFile(root)
	}

	// 1. Defaults
	def := Default()
	if err := k.Load(confmap.Provider(map[string]any{
		"backend.type":        def.Backend.Type,
		"backend.path":        def.Backend.Path,
		"max_recursion_depth": def.MaxRecursionDepth,
		"output":              def.Output,
		"log_level":           def.LogLevel,
		"serve.addr":          def.Serve.Addr,
		"verbose":             false,
		"strict":              false,
		"strict_variables":    false,
		"watch":               false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = cfgFile
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment variables
	// Transform: PERFETTOSQL_BACKEND_TYPE -> backend.type, PERFETTOSQL_STATE_PATH -> state_path
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority). Paths given as flags are relative to the
	// working directory, so they are made absolute here.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			switch f.Name {
			case "database", "state":
				v, _ := flags.GetString(f.Name)
				return key, absPath(v)
			case "package":
				v, _ := flags.GetStringToString(f.Name)
				pkgs := make(map[string]any, len(v))
				for name, dir := range v {
					pkgs[name] = absPath(dir)
				}
				return key, pkgs
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// 6. Defaults that depend on other keys, env expansion and paths
	if cfg.Backend == nil {
		cfg.Backend = &BackendConfig{}
	}
	cfg.Backend.Type = strings.ToLower(cfg.Backend.Type)
	intconfig.ApplyBackendDefaults(cfg.Backend)
	expandBackendEnvVars(cfg.Backend)

	cfg.Backend.Path = intconfig.ResolvePath(cfg.Backend.Path, projectRoot)
	cfg.StatePath = intconfig.ResolvePath(cfg.StatePath, projectRoot)
	if cfg.Packages == nil {
		cfg.Packages = map[string]string{}
	}
	for name, dir := range cfg.Packages {
		cfg.Packages[name] = intconfig.ResolvePath(dir, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"backend_", "serve_"} {
		if strings.HasPrefix(key, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section)
		}
	}
	return key
}

func absPath(p string) string {
	if p == "" || p == ":memory:" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// expandBackendEnvVars expands environment variables in sensitive backend fields.
func expandBackendEnvVars(b *BackendConfig) {
	b.Password = expandEnvVars(b.Password)
	b.User = expandEnvVars(b.User)
	b.Host = expandEnvVars(b.Host)
	b.Database = expandEnvVars(b.Database)
	b.Path = expandEnvVars(b.Path)
}
