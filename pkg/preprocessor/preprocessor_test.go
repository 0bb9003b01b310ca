package preprocessor

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(name string) MacroParam {
	return MacroParam{Name: name, Type: "Expr"}
}

func testMacros(t *testing.T) *Macros {
	t.Helper()
	macros := NewMacros()
	defs := []struct {
		name   string
		params []string
		body   string
	}{
		{"double", []string{"x"}, "$x + $x"},
		{"quad", []string{"y"}, "double!(double!($y))"},
		{"sq", []string{"x"}, "$x * $x"},
		{"eq", []string{"a", "b"}, "$a = $b"},
		{"named", []string{"col"}, "stringify!($col)"},
		{"qualified", []string{"col"}, "stringify_ignore_table!($table.$col)"},
		{"bad", []string{"x"}, "$x + nope!(1)"},
		{"one", nil, "1"},
	}
	for _, d := range defs {
		m := &Macro{Name: d.name, Returns: "Expr", Body: source.New("macro "+d.name, d.body)}
		for _, p := range d.params {
			m.Params = append(m.Params, param(p))
		}
		require.NoError(t, macros.Register(m))
	}
	return macros
}

func expandAll(macros *Macros, input string, opts ...Option) ([]string, error) {
	p := New(source.New("stdin", input), macros, opts...)
	var out []string
	for p.Next() {
		out = append(out, p.Statement().Rewritten())
	}
	return out, p.Err()
}

func TestStatementSplitting(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"two", "SELECT 1; SELECT 2;", []string{"SELECT 1;", "SELECT 2;"}},
		{"empty statements", ";; SELECT 3 ;", []string{"SELECT 3 ;"}},
		{"only separators", " ; ; ", nil},
		{"comment before", "-- hi\nSELECT 4", []string{"SELECT 4"}},
		{"semicolon in string", "SELECT ';'", []string{"SELECT ';'"}},
		{"semicolon in invocation", "SELECT stringify!(a; b); SELECT 5", []string{"SELECT 'a; b';", "SELECT 5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandAll(NewMacros(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpansion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no macros", "SELECT a FROM t", "SELECT a FROM t"},
		{"simple", "SELECT double!(1+2)", "SELECT 1+2 + 1+2"},
		{"no arguments", "SELECT one!()", "SELECT 1"},
		{"nested argument", "SELECT double!(double!(a))", "SELECT a + a + a + a"},
		{"macro in body", "SELECT quad!(b)", "SELECT b + b + b + b"},
		{"parenthesized argument", "SELECT double!((1, 2))", "SELECT (1, 2) + (1, 2)"},
		{"comma inside parens", "SELECT eq!(f(a, b), c)", "SELECT f(a, b) = c"},
		{"keyword named argument", "SELECT sq!(NULL)", "SELECT NULL * NULL"},
		{"root variable untouched", "SELECT $x, double!($x)", "SELECT $x, $x + $x"},
		{"bang not invocation", "SELECT a != b", "SELECT a != b"},
	}
	macros := testMacros(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandAll(macros, tt.input)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestExpansionIsIdempotentWithoutInvocations(t *testing.T) {
	input := "SELECT a, b FROM t WHERE x = $y"
	got, err := expandAll(NewMacros(), input)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, input, got[0])

	again, err := expandAll(NewMacros(), got[0])
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "SELECT stringify!(a + b)", "SELECT 'a + b'"},
		{"quotes doubled", "SELECT stringify!('x')", "SELECT '''x'''"},
		{"expanded argument", "SELECT stringify!(double!(a))", "SELECT 'a + a'"},
		{"deferred at root", "SELECT stringify!($x)", "SELECT stringify!($x)"},
		{"inside macro", "SELECT named!(foo)", "SELECT 'foo'"},
		{"ignore table", "SELECT qualified!(ts)", "SELECT '$table.ts'"},
	}
	macros := testMacros(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandAll(macros, tt.input)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestTokenApply(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "SELECT token_apply!(sq, (a, b))", "SELECT a * a, b * b"},
		{"prefix", "SELECT x token_apply_prefix!(sq, (a))", "SELECT x , a * a"},
		{"and", "SELECT token_apply_and!(eq, (x, y), (p, q))", "SELECT x = p AND y = q"},
		{"and prefix", "SELECT 1 token_apply_and_prefix!(eq, (x), (p))", "SELECT 1  AND x = p"},
		{"empty", "SELECT 1 token_apply!(sq, ())", "SELECT 1 "},
		{"empty and", "SELECT token_apply_and!(sq, ())", "SELECT TRUE"},
		{"empty and prefix", "SELECT 1 token_apply_and_prefix!(sq, ())", "SELECT 1  AND TRUE"},
		{"deferred list variable", "SELECT token_apply!(sq, $cols)", "SELECT token_apply!(sq, $cols)"},
	}
	macros := testMacros(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandAll(macros, tt.input)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestExpansionErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    []Option
		kind    source.Kind
		wantMsg string
	}{
		{"arity", "SELECT double!(1, 2)", nil, source.KindMacro, "macro double expects 1 arguments but 2 were given"},
		{"unknown", "SELECT nope!(1)", nil, source.KindMacro, "unknown macro nope"},
		{"unknown in body", "SELECT bad!(1)", nil, source.KindMacro, "unknown macro nope"},
		{"missing paren", "SELECT double!1", nil, source.KindMacro, "expected '(' after double!"},
		{"unterminated", "SELECT double!(1", nil, source.KindMacro, "unterminated invocation of double"},
		{"empty argument", "SELECT eq!(a, )", nil, source.KindMacro, "empty argument in invocation of eq"},
		{"illegal token", "SELECT #", nil, source.KindLexical, `unrecognized token "#"`},
		{"strict variable", "SELECT $x", []Option{WithStrictVariables()}, source.KindMacro, "variable $x is not defined"},
		{"stringify arity", "SELECT stringify!(a, b)", nil, source.KindMacro, "stringify expects 1 argument but 2 were given"},
		{"token_apply arity", "SELECT token_apply!(sq)", nil, source.KindMacro, "token_apply expects 2 or 3 arguments but 1 were given"},
		{"token_apply mismatch", "SELECT token_apply!(eq, (a, b), (c))", nil, source.KindMacro, "different lengths"},
		{"token_apply not a list", "SELECT token_apply!(sq, a)", nil, source.KindMacro, "expected '('"},
		{"token_apply empty item", "SELECT token_apply!(sq, (a, , b))", nil, source.KindMacro, "empty list item"},
		{"token_apply bad name", "SELECT token_apply!(1, (a))", nil, source.KindMacro, "expects a macro name"},
	}
	macros := testMacros(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandAll(macros, tt.input, tt.opts...)
			require.Error(t, err)
			var serr *source.Error
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.kind, serr.Kind)
			assert.Contains(t, serr.Msg, tt.wantMsg)
			assert.NotEmpty(t, serr.Traceback)
		})
	}
}

func TestStrictVariablesSkipDefinitions(t *testing.T) {
	tests := []string{
		"CREATE PERFETTO FUNCTION f(x INT) RETURNS INT AS SELECT $x + 1",
		"create or replace perfetto function f(x INT) RETURNS INT AS SELECT $x",
		"CREATE PERFETTO MACRO m(x Expr) RETURNS Expr AS $x * 2",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			got, err := expandAll(NewMacros(), input, WithStrictVariables())
			require.NoError(t, err)
			assert.Equal(t, []string{input}, got)
		})
	}

	_, err := expandAll(NewMacros(), "CREATE PERFETTO TABLE t AS SELECT $x", WithStrictVariables())
	assert.ErrorContains(t, err, "variable $x is not defined")
}

func TestErrorStopsIteration(t *testing.T) {
	p := New(source.New("stdin", "SELECT 1; SELECT nope!(1); SELECT 3"), testMacros(t))
	require.True(t, p.Next())
	assert.Equal(t, "SELECT 1;", p.Statement().Rewritten())
	assert.False(t, p.Next())
	assert.Nil(t, p.Statement())
	require.Error(t, p.Err())
	assert.False(t, p.Next())
}

func TestTracebackEntersMacroBody(t *testing.T) {
	_, err := expandAll(testMacros(t), "SELECT bad!(1)")
	require.Error(t, err)
	var serr *source.Error
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Traceback, "  stdin line 1 col 8\n    SELECT bad!(1)\n")
	assert.Contains(t, serr.Traceback, "  macro bad line 1 col 6\n    $x + nope!(1)\n")
	assert.Contains(t, err.Error(), "Traceback (most recent call last):\n")
}

func TestExpandedStatementMapsToOriginal(t *testing.T) {
	p := New(source.New("stdin", "SELECT double!(a) FROM t"), testMacros(t))
	require.True(t, p.Next())
	stmt := p.Statement()
	assert.Equal(t, "SELECT a + a FROM t", stmt.Rewritten())
	assert.Equal(t, "SELECT double!(a) FROM t", stmt.Original())
	assert.Equal(t, 7, stmt.OriginalOffset(7))
	assert.Equal(t, 18, stmt.OriginalOffset(13))
}

func TestMacrosVisibleToLaterStatements(t *testing.T) {
	macros := NewMacros()
	p := New(source.New("stdin", "SELECT 1; SELECT late!()"), macros)
	require.True(t, p.Next())
	require.NoError(t, macros.Register(&Macro{Name: "late", Body: source.New("macro late", "42")}))
	require.True(t, p.Next())
	assert.Equal(t, "SELECT 42", p.Statement().Rewritten())
}
