package config

// Default configuration values.
const (
	DefaultBackendType       = "sqlite"
	DefaultMaxRecursionDepth = 256
)

// ApplyDefaults applies default values to a ProjectConfig.
func (c *ProjectConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.Backend == nil {
		c.Backend = &BackendConfig{}
	}
	ApplyBackendDefaults(c.Backend)
	if c.MaxRecursionDepth <= 0 {
		c.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
}

// ApplyBackendDefaults applies default values based on the backend type.
func ApplyBackendDefaults(b *BackendConfig) {
	if b == nil {
		return
	}
	if b.Type == "" {
		b.Type = DefaultBackendType
	}
	switch b.Type {
	case "sqlite", "duckdb":
		if b.Path == "" {
			b.Path = ":memory:"
		}
	case "postgres":
		if b.Port == 0 {
			b.Port = 5432
		}
		if b.Host == "" {
			b.Host = "localhost"
		}
	}
}
