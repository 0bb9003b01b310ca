package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprBackend_Evaluate(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		bind   func(s core.Stmt)
		want   core.Value
		column string
	}{
		{name: "integer arithmetic", sql: "SELECT 1 + 2", want: core.IntValue(3), column: "1 + 2"},
		{name: "alias", sql: "SELECT 2 * 21 AS answer;", want: core.IntValue(42), column: "answer"},
		{name: "string", sql: "SELECT 'a' + 'b'", want: core.StringValue("ab")},
		{name: "bool becomes integer", sql: "SELECT 1 < 2", want: core.IntValue(1)},
		{name: "nil is null", sql: "SELECT nil", want: core.Null},
		{
			name: "named variable",
			sql:  "SELECT $n * 2",
			bind: func(s core.Stmt) { _ = s.BindNamed("$n", core.IntValue(4)) },
			want: core.IntValue(8),
		},
		{
			name: "positional variable",
			sql:  "SELECT _1 / 2.0",
			bind: func(s core.Stmt) { _ = s.Bind(1, core.IntValue(3)) },
			want: core.FloatValue(1.5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewExprBackend()
			stmt, err := b.Prepare(context.Background(), tt.sql)
			require.NoError(t, err)
			defer func() { _ = stmt.Close() }()
			if tt.bind != nil {
				tt.bind(stmt)
			}

			ok, err := stmt.Step()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, stmt.Column(0))
			if tt.column != "" {
				assert.Equal(t, tt.column, stmt.ColumnName(0))
			}

			ok, err = stmt.Step()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestExprBackend_Functions(t *testing.T) {
	b := NewExprBackend()
	require.NoError(t, b.RegisterFunction("twice", 1, func(_ context.Context, args []core.Value) (core.Value, error) {
		return core.IntValue(args[0].Int * 2), nil
	}))
	require.NoError(t, b.RegisterFunction("fail", 0, func(context.Context, []core.Value) (core.Value, error) {
		return core.Null, errors.New("boom")
	}))

	stmt, err := b.Prepare(context.Background(), "SELECT twice(twice(3))")
	require.NoError(t, err)
	ok, err := stmt.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.IntValue(12), stmt.Column(0))

	require.NoError(t, stmt.Reset())
	ok, err = stmt.Step()
	require.NoError(t, err)
	assert.True(t, ok, "reset statement runs again")

	stmt, err = b.Prepare(context.Background(), "SELECT fail()")
	require.NoError(t, err)
	_, err = stmt.Step()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, 2, b.Prepared())
}

func TestExprBackend_RejectsOtherStatements(t *testing.T) {
	b := NewExprBackend()
	_, err := b.Prepare(context.Background(), "CREATE TABLE t (x INT)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported statement")

	require.NoError(t, b.Close())
	_, err = b.Prepare(context.Background(), "SELECT 1")
	assert.Error(t, err)
}
