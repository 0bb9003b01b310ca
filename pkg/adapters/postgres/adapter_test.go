package postgres

import (
	"context"
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  adapter.Config
		want string
	}{
		{
			name: "database only uses local defaults",
			cfg:  adapter.Config{Database: "traces"},
			want: "host=localhost port=5432 dbname=traces sslmode=disable",
		},
		{
			name: "credentials and port",
			cfg: adapter.Config{
				Host:     "trace-db",
				Port:     5433,
				Database: "traces",
				Username: "perfetto",
				Password: "secret",
			},
			want: "host=trace-db port=5433 dbname=traces sslmode=disable user=perfetto password=secret",
		},
		{
			name: "sslmode option overrides default",
			cfg: adapter.Config{
				Host:     "trace-db",
				Database: "traces",
				Options:  map[string]string{"sslmode": "verify-full", "search_path": "trace"},
			},
			want: "host=trace-db port=5432 dbname=traces sslmode=verify-full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildPostgresDSN(tt.cfg))
		})
	}
}

func TestAdapter_FromRegistry(t *testing.T) {
	adp, err := adapter.NewAdapter(core.AdapterConfig{Type: "postgres"}, nil)
	require.NoError(t, err)

	pg, ok := adp.(*Adapter)
	require.True(t, ok)
	assert.Equal(t, "postgres", pg.DialectName())
	assert.False(t, pg.IsConnected())

	_, registers := adp.(core.FunctionRegistrar)
	assert.False(t, registers, "postgres does not accept PerfettoSQL functions")
}

func TestAdapter_RequiresConnection(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	assert.ErrorContains(t, adp.Exec(ctx, "CREATE TABLE slice (id INT)"), "not established")

	_, err := adp.Query(ctx, "SELECT 1")
	assert.ErrorContains(t, err, "not established")

	_, err = adp.Prepare(ctx, "SELECT $1")
	assert.ErrorContains(t, err, "not established")

	assert.NoError(t, adp.Close())
}
