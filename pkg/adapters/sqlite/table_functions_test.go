package sqlite

import (
	"context"
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counting returns rows 1..n scaled by factor for the argument n.
func counting(name string, factor int64) *core.TableFunction {
	return &core.TableFunction{
		Name:    name,
		Args:    []string{"n"},
		Columns: []string{"i"},
		Call: func(_ context.Context, args []core.Value) ([][]core.Value, error) {
			var rows [][]core.Value
			for i := int64(1); i <= args[0].Int; i++ {
				rows = append(rows, []core.Value{core.IntValue(i * factor)})
			}
			return rows, nil
		},
	}
}

func TestAdapter_RegisterTableFunction(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)

	require.NoError(t, adp.RegisterTableFunction(ctx, counting("upto", 1)))
	assert.Equal(t, []int64{1, 2, 3}, queryInts(t, adp, "SELECT i FROM upto(3)"))
	assert.Equal(t, []int64{6}, queryInts(t, adp, "SELECT sum(i) FROM upto(3)"))

	// The argument is a hidden column.
	assert.Equal(t, []int64{2, 2}, queryInts(t, adp, "SELECT \"$n\" FROM upto(2)"))

	require.NoError(t, adp.Exec(ctx, "CREATE TABLE sizes (n INT); INSERT INTO sizes VALUES (1), (2)"))
	assert.Equal(t, []int64{1, 1, 2}, queryInts(t, adp, "SELECT u.i FROM sizes s, upto(s.n) u ORDER BY s.n, u.i"))
}

func TestAdapter_ReplaceTableFunction(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)

	require.NoError(t, adp.RegisterTableFunction(ctx, counting("series", 1)))
	require.NoError(t, adp.RegisterTableFunction(ctx, &core.TableFunction{
		Name:    "series",
		Args:    []string{"a", "b"},
		Columns: []string{"total", "product"},
		Call: func(_ context.Context, args []core.Value) ([][]core.Value, error) {
			a, b := args[0].Int, args[1].Int
			return [][]core.Value{{core.IntValue(a + b), core.IntValue(a * b)}}, nil
		},
	}))
	assert.Equal(t, []int64{7}, queryInts(t, adp, "SELECT total FROM series(3, 4)"))
	assert.Equal(t, []int64{12}, queryInts(t, adp, "SELECT product FROM series(3, 4)"))
}

func TestAdapter_TableFunctionsArePerAdapter(t *testing.T) {
	ctx := context.Background()
	a, b := connect(t), connect(t)

	require.NoError(t, a.RegisterTableFunction(ctx, counting("scaled", 1)))
	require.NoError(t, b.RegisterTableFunction(ctx, counting("scaled", 10)))

	assert.Equal(t, []int64{1, 2}, queryInts(t, a, "SELECT i FROM scaled(2)"))
	assert.Equal(t, []int64{10, 20}, queryInts(t, b, "SELECT i FROM scaled(2)"))
}

func TestAdapter_TableFunctionErrors(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)

	failing := counting("failing", 1)
	failing.Call = func(context.Context, []core.Value) ([][]core.Value, error) {
		return nil, assert.AnError
	}
	require.NoError(t, adp.RegisterTableFunction(ctx, failing))
	stmt, err := adp.Prepare(ctx, "SELECT i FROM failing(1)")
	if err == nil {
		_, err = stmt.Step()
		_ = stmt.Close()
	}
	assert.ErrorContains(t, err, assert.AnError.Error())

	// A clash with an ordinary table leaves nothing behind, so the table is
	// not dropped by a later declaration.
	require.NoError(t, adp.Exec(ctx, "CREATE TABLE taken (x INT); INSERT INTO taken VALUES (5)"))
	require.Error(t, adp.RegisterTableFunction(ctx, counting("taken", 1)))
	require.Error(t, adp.RegisterTableFunction(ctx, counting("taken", 1)))
	assert.Equal(t, []int64{5}, queryInts(t, adp, "SELECT x FROM taken"))

	var unconnected Adapter
	assert.ErrorContains(t, unconnected.RegisterTableFunction(ctx, counting("x", 1)), "not established")
}
