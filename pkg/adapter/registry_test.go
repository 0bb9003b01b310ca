package adapter

import (
	"context"
	"log/slog"
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainBackend runs SQL only.
type plainBackend struct{ BaseSQLAdapter }

func (plainBackend) DialectName() string                   { return "plain" }
func (plainBackend) Connect(context.Context, Config) error { return nil }

// functionBackend also hosts scalar functions.
type functionBackend struct{ plainBackend }

func (functionBackend) RegisterFunction(string, int, core.ScalarFunc) error { return nil }

func TestBackends_ReportCapabilities(t *testing.T) {
	Register("Registry_Test_Plain", func(*slog.Logger) Adapter { return &plainBackend{} })
	Register("registry_test_functions", func(*slog.Logger) Adapter { return &functionBackend{} })

	infos := make(map[string]BackendInfo)
	for _, info := range Backends() {
		infos[info.Name] = info
	}
	assert.Equal(t, BackendInfo{Name: "registry_test_plain"}, infos["registry_test_plain"])
	assert.Equal(t, BackendInfo{Name: "registry_test_functions", Functions: true}, infos["registry_test_functions"])
}

func TestNewAdapter_FromBackendType(t *testing.T) {
	Register("registry_test_select", func(*slog.Logger) Adapter { return &plainBackend{} })

	tests := []struct {
		name    string
		typ     string
		wantErr string
	}{
		{name: "exact", typ: "registry_test_select"},
		{name: "case-insensitive", typ: "Registry_Test_SELECT"},
		{name: "missing", wantErr: "backend type not specified"},
		{name: "unknown", typ: "oracle", wantErr: `unknown backend type "oracle"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp, err := NewAdapter(Config{Type: tt.typ}, nil)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "plain", adp.DialectName())
		})
	}
}

func TestUnknownAdapterError(t *testing.T) {
	err := &UnknownAdapterError{Type: "mysql", Available: []string{"duckdb", "postgres", "sqlite"}}
	assert.Equal(t,
		`unknown backend type "mysql" (available: duckdb, postgres, sqlite); check backend.type in perfettosql.yaml`,
		err.Error())
}
