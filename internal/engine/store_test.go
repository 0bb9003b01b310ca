package engine

import (
	"testing"

	"github.com/leapstack-labs/perfettosql/internal/state"
	"github.com/leapstack-labs/perfettosql/internal/testutil"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEngine_MacrosArePersisted(t *testing.T) {
	store := newTestStore(t)

	first := newTestEngine(t, Config{}, WithStore(store))
	run(t, first, `
		CREATE PERFETTO MACRO twice(x Expr) RETURNS Expr AS ($x) * 2;
		CREATE PERFETTO MACRO quad(x Expr) RETURNS Expr AS twice!(twice!($x));
	`)

	saved, err := store.ListMacros()
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "quad", saved[0].Name)
	assert.Equal(t, []core.MacroParam{{Name: "x", Type: "Expr"}}, saved[0].Params)
	assert.Equal(t, "Expr", saved[0].Returns)

	second := newTestEngine(t, Config{}, WithStore(store))
	n, err := second.LoadMacros()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res := run(t, second, "SELECT quad!(3)")
	assert.Equal(t, [][]core.Value{ints(12)}, res.Rows)
}

func TestEngine_ModuleMacrosAreNotPersisted(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "util.sql", "CREATE PERFETTO MACRO one() RETURNS Expr AS 1;")

	store := newTestStore(t)
	e := newTestEngine(t, Config{}, WithStore(store))
	require.NoError(t, e.RegisterPackage("std", dir))

	res := run(t, e, "INCLUDE PERFETTO MODULE std.util; SELECT one!()")
	assert.Equal(t, [][]core.Value{ints(1)}, res.Rows)

	saved, err := store.ListMacros()
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestEngine_LoadMacrosWithoutStore(t *testing.T) {
	e := newTestEngine(t, Config{})
	n, err := e.LoadMacros()
	require.NoError(t, err)
	assert.Zero(t, n)
}
