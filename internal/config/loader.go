package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "perfettosql.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "perfettosql.yml"

// LoadFromDir loads a ProjectConfig from the given directory.
// Returns nil, nil if no config file is found (not an error condition).
func LoadFromDir(dir string) (*ProjectConfig, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}

	var cfg ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ApplyDefaults()

	for name, pkgDir := range cfg.Packages {
		cfg.Packages[name] = ResolvePath(pkgDir, dir)
	}
	cfg.StatePath = ResolvePath(cfg.StatePath, dir)
	cfg.Backend.Path = ResolvePath(cfg.Backend.Path, dir)

	return &cfg, nil
}

// FindConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from the given directory to find a directory
// containing perfettosql.yaml or perfettosql.yml.
// Returns empty string if not found within maxLevels.
func FindProjectRoot(startDir string, maxLevels int) string {
	dir := startDir
	for i := 0; i < maxLevels; i++ {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return ""
}

// ResolvePath resolves path relative to baseDir unless it is empty, absolute
// or an in-memory database name.
func ResolvePath(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
