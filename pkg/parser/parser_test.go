package parser

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/perfettosql/pkg/preprocessor"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, sql string) Statement {
	t.Helper()
	stmts, err := parseAll(sql, preprocessor.NewMacros())
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func parseAll(sql string, macros *preprocessor.Macros) ([]Statement, error) {
	p := New(source.New("test.sql", sql), macros)
	var stmts []Statement
	for p.Next() {
		stmts = append(stmts, p.Statement())
	}
	return stmts, p.Err()
}

func TestPassthrough(t *testing.T) {
	tests := []string{
		"SELECT 1",
		"CREATE TABLE t (a INT)",
		"CREATE OR REPLACE VIEW v AS SELECT 1",
		"DROP TABLE t",
		"INCLUDE something",
		"SELECT * FROM perfetto",
		"SELECT garbage (((",
	}
	for _, sql := range tests {
		t.Run(sql, func(t *testing.T) {
			stmt := parseOne(t, sql)
			require.IsType(t, &Passthrough{}, stmt)
			assert.Equal(t, "passthrough", stmt.Kind())
			assert.Equal(t, sql, stmt.Source().Rewritten())
		})
	}
}

func TestCreateFunction(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		replace  bool
		fn       string
		args     []Arg
		returns  Returns
		body     string
		delegate string
	}{
		{
			name:    "scalar",
			sql:     "CREATE PERFETTO FUNCTION add(a INT, b LONG) RETURNS INT AS SELECT $a + $b;",
			fn:      "add",
			args:    []Arg{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeLong}},
			returns: Returns{Scalar: TypeInt},
			body:    "SELECT $a + $b",
		},
		{
			name:    "no args or replace",
			sql:     "CREATE OR REPLACE PERFETTO FUNCTION one() RETURNS double AS SELECT 1.0",
			replace: true,
			fn:      "one",
			args:    []Arg{},
			returns: Returns{Scalar: TypeDouble},
			body:    "SELECT 1.0",
		},
		{
			name: "table",
			sql:  "CREATE PERFETTO FUNCTION slices(id JOINID(slice.id)) RETURNS TABLE(ts TIMESTAMP, dur DURATION) AS SELECT ts, dur FROM slice WHERE id = $id",
			fn:   "slices",
			args: []Arg{{Name: "id", Type: TypeJoinID, Ref: "slice.id"}},
			returns: Returns{Table: []Column{
				{Name: "ts", Type: TypeTimestamp},
				{Name: "dur", Type: TypeDuration},
			}},
			body: "SELECT ts, dur FROM slice WHERE id = $id",
		},
		{
			name:     "delegates",
			sql:      "CREATE PERFETTO FUNCTION f(x STRING) RETURNS STRING DELEGATES TO __intrinsic_f;",
			fn:       "f",
			args:     []Arg{{Name: "x", Type: TypeString}},
			returns:  Returns{Scalar: TypeString},
			delegate: "__intrinsic_f",
		},
		{
			name:    "keyword argument name",
			sql:     "CREATE PERFETTO FUNCTION g(index INT) RETURNS BOOL AS SELECT $index > 0",
			fn:      "g",
			args:    []Arg{{Name: "index", Type: TypeInt}},
			returns: Returns{Scalar: TypeBool},
			body:    "SELECT $index > 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := parseOne(t, tt.sql)
			fn, ok := stmt.(*CreateFunction)
			require.True(t, ok, "got %T", stmt)
			assert.Equal(t, tt.replace, fn.Replace)
			assert.Equal(t, tt.fn, fn.Name)
			assert.Equal(t, tt.args, fn.Args)
			assert.Equal(t, tt.returns, fn.Returns)
			assert.Equal(t, tt.delegate, fn.DelegatesTo)
			if tt.body == "" {
				assert.Nil(t, fn.Body)
			} else {
				require.NotNil(t, fn.Body)
				assert.Equal(t, tt.body, fn.Body.Rewritten())
			}
		})
	}
}

func TestCreateTableAndView(t *testing.T) {
	stmt := parseOne(t, "CREATE PERFETTO TABLE foo(a INT, b STRING) AS SELECT 1 AS a, 'x' AS b;")
	table, ok := stmt.(*CreateTable)
	require.True(t, ok)
	assert.Equal(t, "foo", table.Name)
	assert.False(t, table.Replace)
	assert.Equal(t, []Column{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeString}}, table.Schema)
	assert.Equal(t, "SELECT 1 AS a, 'x' AS b", table.Body.Rewritten())

	stmt = parseOne(t, "CREATE OR REPLACE PERFETTO VIEW bar AS SELECT * FROM foo")
	view, ok := stmt.(*CreateView)
	require.True(t, ok)
	assert.True(t, view.Replace)
	assert.Equal(t, "bar", view.Name)
	assert.Nil(t, view.Schema)
	assert.Equal(t, "SELECT * FROM foo", view.Body.Rewritten())
	assert.Equal(t, "CREATE VIEW bar AS SELECT * FROM foo", view.CreateViewSQL.Rewritten())
}

func TestCreateViewKeepsBodyProvenance(t *testing.T) {
	macros := preprocessor.NewMacros()
	require.NoError(t, macros.Register(&preprocessor.Macro{
		Name: "src", Body: source.New("macro src", "SELECT 1 AS x"),
	}))
	stmts, err := parseAll("CREATE PERFETTO VIEW v AS src!()", macros)
	require.NoError(t, err)
	view := stmts[0].(*CreateView)
	assert.Equal(t, "CREATE VIEW v AS SELECT 1 AS x", view.CreateViewSQL.Rewritten())
	assert.Contains(t, view.CreateViewSQL.AsTraceback(20), "macro src")
}

func TestCreateViewRewritesStatement(t *testing.T) {
	stmts, err := parseAll("SELECT 1;\n\n\nCREATE PERFETTO VIEW v AS SELECT 1 AS a;", preprocessor.NewMacros())
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	view := stmts[1].(*CreateView)

	sql := view.CreateViewSQL
	assert.Equal(t, "CREATE VIEW v AS SELECT 1 AS a", sql.Rewritten())
	assert.Equal(t, "CREATE PERFETTO VIEW v AS SELECT 1 AS a;", sql.Original())
	assert.Equal(t, 4, sql.Position(0).Line)

	tb := sql.AsTraceback(0)
	assert.Contains(t, tb, "test.sql line 4 col 1")
	assert.Contains(t, tb, "CREATE PERFETTO VIEW v AS SELECT 1 AS a;")
}

func TestCreateMacro(t *testing.T) {
	stmt := parseOne(t, "CREATE PERFETTO MACRO pair(a Expr, b _TableOrSubquery) RETURNS TableOrSubquery AS SELECT $a FROM $b")
	m, ok := stmt.(*CreateMacro)
	require.True(t, ok)
	assert.Equal(t, "pair", m.Name)
	assert.Equal(t, []preprocessor.MacroParam{
		{Name: "a", Type: "Expr"},
		{Name: "b", Type: "_TableOrSubquery"},
	}, m.Params)
	assert.Equal(t, "TableOrSubquery", m.Returns)
	assert.Equal(t, "SELECT $a FROM $b", m.Body.Rewritten())

	def := m.Macro()
	assert.Equal(t, "pair", def.Name)
	assert.Same(t, m.Body, def.Body)
}

func TestIndexStatements(t *testing.T) {
	stmt := parseOne(t, "CREATE PERFETTO INDEX idx ON foo(a, b);")
	idx, ok := stmt.(*CreateIndex)
	require.True(t, ok)
	assert.Equal(t, "idx", idx.Name)
	assert.Equal(t, "foo", idx.Table)
	assert.Equal(t, []string{"a", "b"}, idx.Columns)

	stmt = parseOne(t, "DROP PERFETTO INDEX idx ON foo")
	drop, ok := stmt.(*DropIndex)
	require.True(t, ok)
	assert.Equal(t, "idx", drop.Name)
	assert.Equal(t, "foo", drop.Table)
}

func TestIncludeModule(t *testing.T) {
	tests := []struct {
		sql string
		key string
	}{
		{"INCLUDE PERFETTO MODULE common", "common"},
		{"INCLUDE PERFETTO MODULE android.startup.startups;", "android.startup.startups"},
		{"include perfetto module linux.cpu.*", "linux.cpu.*"},
		{"INCLUDE PERFETTO MODULE a.index.b", "a.index.b"},
		{"INCLUDE PERFETTO MODULE *;", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			stmt := parseOne(t, tt.sql)
			inc, ok := stmt.(*IncludeModule)
			require.True(t, ok)
			assert.Equal(t, tt.key, inc.Key)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantMsg string
	}{
		{"unknown perfetto object", "CREATE PERFETTO THING x", `expected FUNCTION, TABLE, VIEW, MACRO or INDEX after PERFETTO but found "THING"`},
		{"invalid type", "CREATE PERFETTO FUNCTION f(a NUMBER) RETURNS INT AS SELECT 1", `invalid type "NUMBER"`},
		{"duplicate arg", "CREATE PERFETTO FUNCTION f(a INT, A INT) RETURNS INT AS SELECT 1", `duplicate argument name "A"`},
		{"duplicate column", "CREATE PERFETTO TABLE t(a INT, a INT) AS SELECT 1", `duplicate column name "a"`},
		{"empty schema", "CREATE PERFETTO TABLE t() AS SELECT 1", "column list must not be empty"},
		{"empty table return", "CREATE PERFETTO FUNCTION f() RETURNS TABLE() AS SELECT 1", "column list must not be empty"},
		{"missing as", "CREATE PERFETTO TABLE t SELECT 1", `expected AS but found "SELECT"`},
		{"empty body", "CREATE PERFETTO VIEW v AS ;", "view body must not be empty"},
		{"empty body eof", "CREATE PERFETTO TABLE t AS", "table body must not be empty"},
		{"empty delegate", "CREATE PERFETTO FUNCTION f() RETURNS INT DELEGATES TO", "DELEGATES TO requires a function name"},
		{"delegate without to", "CREATE PERFETTO FUNCTION f() RETURNS INT DELEGATES g", `expected TO but found "g"`},
		{"missing returns", "CREATE PERFETTO FUNCTION f() AS SELECT 1", `expected RETURNS but found "AS"`},
		{"invalid macro type", "CREATE PERFETTO MACRO m(a Int) RETURNS Expr AS 1", `invalid macro type "Int"`},
		{"duplicate macro param", "CREATE PERFETTO MACRO m(a Expr, a Expr) RETURNS Expr AS 1", `duplicate parameter name "a"`},
		{"empty index columns", "CREATE PERFETTO INDEX i ON t()", "index column list must not be empty"},
		{"trailing tokens", "DROP PERFETTO INDEX i ON t extra", `unexpected "extra" after statement`},
		{"bad module key", "INCLUDE PERFETTO MODULE a.", "invalid module key"},
		{"spaced module key", "INCLUDE PERFETTO MODULE a . b", `unexpected "." after statement`},
		{"unexpected ref", "CREATE PERFETTO TABLE t(a INT(x.y)) AS SELECT 1", `expected ',' or ')' but found "("`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAll(tt.sql, preprocessor.NewMacros())
			require.Error(t, err)
			var serr *source.Error
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, source.KindParse, serr.Kind)
			assert.Contains(t, serr.Msg, tt.wantMsg)
			assert.Contains(t, serr.Traceback, "test.sql")
		})
	}
}

func TestMacroErrorsSurfaceFromNext(t *testing.T) {
	_, err := parseAll("SELECT nope!(1)", preprocessor.NewMacros())
	var serr *source.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, source.KindMacro, serr.Kind)
}

func TestMultipleStatements(t *testing.T) {
	stmts, err := parseAll(`
		CREATE PERFETTO TABLE a AS SELECT 1;
		INCLUDE PERFETTO MODULE x.y;
		SELECT * FROM a;
	`, preprocessor.NewMacros())
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Equal(t, "create_table", stmts[0].Kind())
	assert.Equal(t, "include_module", stmts[1].Kind())
	assert.Equal(t, "passthrough", stmts[2].Kind())
	assert.Equal(t, "SELECT * FROM a;", stmts[2].Source().Rewritten())
}

func TestParseType(t *testing.T) {
	tests := []struct {
		name string
		want Type
		ok   bool
	}{
		{"int", TypeInt, true},
		{"LONG", TypeLong, true},
		{"Uint", TypeUint, true},
		{"ArgSetId", TypeArgSetID, true},
		{"joinid", TypeJoinID, true},
		{"bytes", TypeBytes, true},
		{"INVALID", TypeInvalid, false},
		{"float", TypeInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseType(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "TIMESTAMP", TypeTimestamp.String())
	assert.True(t, TypeBool.IsInteger())
	assert.False(t, TypeString.IsInteger())
}
