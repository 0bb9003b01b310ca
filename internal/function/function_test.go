package function

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/perfettosql/internal/testutil"
	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/leapstack-labs/perfettosql/pkg/adapters/sqlite"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intSig(args ...string) Signature {
	sig := Signature{Returns: parser.TypeLong}
	for _, a := range args {
		sig.Args = append(sig.Args, parser.Arg{Name: a, Type: parser.TypeLong})
	}
	return sig
}

// register creates a function over an expression body and exposes it to the
// backend under its own name.
func register(t *testing.T, b *testutil.ExprBackend, name, body string, sig Signature, opts ...Option) *Function {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	f := New(name, sig, source.New(name, body), b, opts...)
	require.NoError(t, b.RegisterFunction(name, len(sig.Args), f.Call))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFunction_Call(t *testing.T) {
	tests := []struct {
		name string
		body string
		sig  Signature
		args []core.Value
		want core.Value
	}{
		{
			name: "constant",
			body: "SELECT 42",
			sig:  intSig(),
			want: core.IntValue(42),
		},
		{
			name: "arguments bound by name",
			body: "SELECT $a * 10 + $b",
			sig:  intSig("a", "b"),
			args: []core.Value{core.IntValue(4), core.IntValue(2)},
			want: core.IntValue(42),
		},
		{
			name: "null argument",
			body: "SELECT $a ?? -1",
			sig:  intSig("a"),
			args: []core.Value{core.Null},
			want: core.IntValue(-1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewExprBackend()
			f := register(t, b, "f", tt.body, tt.sig)

			got, err := f.Call(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunction_WrongArgumentCount(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "f", "SELECT $x", intSig("x"))

	_, err := f.Call(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function f expects 1 arguments but 0 were given")
}

func TestFunction_RecursionReusesStatementsPerDepth(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "sum", "SELECT $n == 0 ? 0 : $n + sum($n - 1)", intSig("n"))
	ctx := context.Background()

	got, err := f.Call(ctx, []core.Value{core.IntValue(3)})
	require.NoError(t, err)
	assert.Equal(t, core.IntValue(6), got)
	assert.Equal(t, 4, b.Prepared(), "one statement per depth")

	got, err = f.Call(ctx, []core.Value{core.IntValue(2)})
	require.NoError(t, err)
	assert.Equal(t, core.IntValue(3), got)
	assert.Equal(t, 4, b.Prepared(), "statements are reused")
	assert.Zero(t, f.depth)
}

func TestFunction_DepthLimit(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "loop", "SELECT loop($n)", intSig("n"), WithMaxDepth(8))

	_, err := f.Call(context.Background(), []core.Value{core.IntValue(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursion depth limit 8 exceeded")
	assert.Zero(t, f.depth, "every level is released on error")
}

func TestFunction_MemoizedFactorial(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "fact", "SELECT $n == 0 ? 1 : $n * (fact($n - 1) ?? 0)", intSig("n"))
	require.NoError(t, f.EnableMemoization())

	got, err := f.Call(context.Background(), []core.Value{core.IntValue(5)})
	require.NoError(t, err)
	assert.Equal(t, core.IntValue(120), got)

	want := []int64{1, 1, 2, 6, 24}
	for i, w := range want {
		v, ok := f.Memoized(int64(i))
		require.True(t, ok, "fact(%d) memoized", i)
		assert.Equal(t, core.IntValue(w), v)
	}
	assert.LessOrEqual(t, b.Prepared(), 2, "unrolling does not deepen recursion")
}

func TestFunction_MemoizedDeepRecursion(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "tri", "SELECT $n == 0 ? 0 : $n + (tri($n - 1) ?? 0)", intSig("n"), WithMaxDepth(4))
	require.NoError(t, f.EnableMemoization())

	got, err := f.Call(context.Background(), []core.Value{core.IntValue(2000)})
	require.NoError(t, err)
	assert.Equal(t, core.IntValue(2000*2001/2), got)
}

func TestFunction_MemoizedMutualRecursion(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "ping", "SELECT pong($x)", intSig("x"))
	g := register(t, b, "pong", "SELECT ping($x)", intSig("x"))
	require.NoError(t, f.EnableMemoization())
	require.NoError(t, g.EnableMemoization())

	_, err := f.Call(context.Background(), []core.Value{core.IntValue(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInfiniteRecursion.Error())
}

func TestFunction_MemoizedSelfCycle(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "same", "SELECT same($x)", intSig("x"))
	require.NoError(t, f.EnableMemoization())

	_, err := f.Call(context.Background(), []core.Value{core.IntValue(7)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "infinite recursion detected")
}

func TestFunction_NonIntegerResultsAreNotMemoized(t *testing.T) {
	b := testutil.NewExprBackend()
	f := register(t, b, "half", "SELECT $n == 0 ? 0 : ($n > 2 ? (half($n - 1) ?? 0) : nil)", intSig("n"))
	require.NoError(t, f.EnableMemoization())

	_, err := f.Call(context.Background(), []core.Value{core.IntValue(4)})
	require.NoError(t, err)

	_, ok := f.Memoized(2)
	assert.False(t, ok, "NULL results are dropped")
}

func TestFunction_EnableMemoization(t *testing.T) {
	tests := []struct {
		name    string
		sig     Signature
		wantErr bool
	}{
		{name: "single integer", sig: intSig("n")},
		{name: "no arguments", sig: intSig(), wantErr: true},
		{name: "two arguments", sig: intSig("a", "b"), wantErr: true},
		{
			name:    "string argument",
			sig:     Signature{Args: []parser.Arg{{Name: "s", Type: parser.TypeString}}, Returns: parser.TypeLong},
			wantErr: true,
		},
		{
			name:    "double result",
			sig:     Signature{Args: []parser.Arg{{Name: "n", Type: parser.TypeInt}}, Returns: parser.TypeDouble},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New("f", tt.sig, source.New("f", "SELECT 1"), testutil.NewExprBackend())
			err := f.EnableMemoization()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "cannot memoize function f")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFunction_SQLiteBodies(t *testing.T) {
	ctx := context.Background()
	db := sqlite.New(testutil.NewTestLogger(t))
	require.NoError(t, db.Connect(ctx, adapter.Config{Path: ":memory:"}))
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Exec(ctx, "CREATE TABLE slice (id INTEGER, dur INTEGER)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO slice VALUES (1, 10), (2, 20), (2, 30)"))

	tests := []struct {
		name    string
		body    string
		arg     int64
		want    core.Value
		wantErr string
	}{
		{name: "single row", body: "SELECT dur FROM slice WHERE id = $id", arg: 1, want: core.IntValue(10)},
		{name: "no rows is null", body: "SELECT dur FROM slice WHERE id = $id", arg: 9, want: core.Null},
		{name: "many rows", body: "SELECT dur FROM slice WHERE id = $id", arg: 2, wantErr: "more than one row"},
		{name: "many columns", body: "SELECT id, dur FROM slice WHERE id = $id", arg: 1, wantErr: "exactly one column"},
		{name: "bad body", body: "SELECT nope FROM slice", arg: 1, wantErr: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New("dur_of", intSig("id"), source.New("dur_of", tt.body), db)
			defer func() { _ = f.Close() }()

			got, err := f.Call(ctx, []core.Value{core.IntValue(tt.arg)})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunction_EvaluationErrorsCarryTraceback(t *testing.T) {
	ctx := context.Background()
	db := sqlite.New(nil)
	require.NoError(t, db.Connect(ctx, adapter.Config{}))
	defer func() { _ = db.Close() }()

	f := New("pair", intSig("x"), source.New("pair", "SELECT $x, $x"), db)
	defer func() { _ = f.Close() }()

	_, err := f.Call(ctx, []core.Value{core.IntValue(1)})
	var se *source.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindEvaluation, se.Kind)
	assert.Contains(t, se.Traceback, "pair line 1 col 1")
}

func TestFunction_StrictTypes(t *testing.T) {
	ctx := context.Background()
	db := sqlite.New(testutil.NewTestLogger(t))
	require.NoError(t, db.Connect(ctx, adapter.Config{}))
	defer func() { _ = db.Close() }()

	tests := []struct {
		name    string
		returns parser.Type
		body    string
		arg     core.Value
		want    core.Value
		wantErr string
	}{
		{name: "matching result", returns: parser.TypeLong, body: "SELECT $x + 1", arg: core.IntValue(1), want: core.IntValue(2)},
		{name: "null result", returns: parser.TypeString, body: "SELECT NULL", arg: core.IntValue(1), want: core.Null},
		{name: "integer widens to double", returns: parser.TypeDouble, body: "SELECT $x", arg: core.IntValue(3), want: core.IntValue(3)},
		{name: "wrong result", returns: parser.TypeLong, body: "SELECT 'slice'", arg: core.IntValue(1), wantErr: "declared to return LONG but returned TEXT"},
		{name: "wrong argument", returns: parser.TypeLong, body: "SELECT 1", arg: core.StringValue("x"), wantErr: "argument x expects LONG but got TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Signature{Args: []parser.Arg{{Name: "x", Type: parser.TypeLong}}, Returns: tt.returns}
			f := New("typed", sig, source.New("typed", tt.body), db, WithStrictTypes())
			defer func() { _ = f.Close() }()

			got, err := f.Call(ctx, []core.Value{tt.arg})
			if tt.wantErr != "" {
				var se *source.Error
				require.True(t, errors.As(err, &se), "error %v", err)
				assert.Equal(t, source.KindEvaluation, se.Kind)
				assert.Contains(t, se.Msg, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	loose := New("loose", intSig("x"), source.New("loose", "SELECT 'text'"), db)
	defer func() { _ = loose.Close() }()
	got, err := loose.Call(ctx, []core.Value{core.IntValue(1)})
	require.NoError(t, err)
	assert.Equal(t, core.StringValue("text"), got)
}
