package adapter_test

import (
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/perfettosql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/perfettosql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/perfettosql/pkg/adapters/sqlite"
)

func TestBackends_BuiltIn(t *testing.T) {
	infos := make(map[string]adapter.BackendInfo)
	for _, info := range adapter.Backends() {
		infos[info.Name] = info
	}

	tests := []struct {
		name string
		want adapter.BackendInfo
	}{
		{name: "sqlite", want: adapter.BackendInfo{Name: "sqlite", Functions: true, TableFunctions: true}},
		{name: "duckdb", want: adapter.BackendInfo{Name: "duckdb"}},
		{name: "postgres", want: adapter.BackendInfo{Name: "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, infos[tt.name])
		})
	}
}

func TestNewAdapter_DefaultBackend(t *testing.T) {
	adp, err := adapter.NewAdapter(core.AdapterConfig{Type: "sqlite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", adp.DialectName())

	_, err = adapter.NewAdapter(core.AdapterConfig{Type: "clickhouse"}, nil)
	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Subset(t, unknown.Available, []string{"duckdb", "postgres", "sqlite"})
	assert.IsIncreasing(t, unknown.Available)
}
