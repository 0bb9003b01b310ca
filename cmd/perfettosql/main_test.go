// Package main provides tests for the perfettosql CLI.
package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/perfettosql/internal/cli"
	"github.com/leapstack-labs/perfettosql/internal/cli/config"
	"github.com/leapstack-labs/perfettosql/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args from dir and returns stdout and stderr.
func execute(t *testing.T, dir string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(dir)
	config.ResetConfig()

	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "perfettosql v")
}

func TestHelpCommand(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "", "--help")
	require.NoError(t, err)
	for _, want := range []string{"run", "repl", "expand", "parse", "serve", "modules", "macros", "runs"} {
		assert.Contains(t, out, want)
	}
}

func TestRunCommand(t *testing.T) {
	project := testutil.SetupTestProject(t)

	out, _, err := execute(t, project, "", "run", "-o", "csv", filepath.Join("queries", "total.sql"))
	require.NoError(t, err)
	assert.Equal(t, "total\n12\n", out)

	out, _, err = execute(t, project, "", "runs", "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "total.sql")
}

func TestRunCommand_Stdin(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "CREATE PERFETTO FUNCTION add1(x INT) RETURNS INT AS SELECT $x + 1;\nSELECT add1(41) AS v;",
		"run", "-o", "json")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []map[string]any{{"v": float64(42)}}, rows)
}

func TestRunCommand_ErrorTraceback(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "bad.sql", "SELECT 1;\nSELECT * FROM no_such_table;\n")

	_, _, err := execute(t, dir, "", "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_table")
}

func TestRunCommand_Jobs(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.sql", "SELECT 'a' AS name;")
	b := testutil.WriteFile(t, dir, "b.sql", "SELECT 'b' AS name;")

	out, _, err := execute(t, dir, "", "run", "-o", "csv", "-j", "2", a, b)
	require.NoError(t, err)
	assert.Equal(t, "name\na\nname\nb\n", out, "results keep input order")
}

func TestExpandCommand(t *testing.T) {
	out, _, err := execute(t, t.TempDir(),
		"CREATE PERFETTO MACRO twice(x Expr) RETURNS Expr AS ($x) * 2;\nSELECT twice!(3);",
		"expand", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT (3) * 2;")
}

func TestParseCommand(t *testing.T) {
	out, _, err := execute(t, t.TempDir(),
		"CREATE PERFETTO TABLE t(id LONG) AS SELECT 1 AS id;\nINCLUDE PERFETTO MODULE std.x;",
		"parse", "--format", "json")
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "create_table", docs[0]["kind"])
	assert.Equal(t, "t", docs[0]["name"])
	assert.Equal(t, "include_module", docs[1]["kind"])
	assert.Equal(t, "std.x", docs[1]["module"])
}

func TestModulesCommand(t *testing.T) {
	project := testutil.SetupTestProject(t)

	out, _, err := execute(t, project, "", "modules", "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "std.common.values")
	assert.Contains(t, out, "std.sums")

	out, _, err = execute(t, project, "", "modules", "graph", "-o", "json", "std.sums")
	require.NoError(t, err)
	var levels []struct {
		Level   int      `json:"level"`
		Modules []string `json:"modules"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &levels))
	require.Len(t, levels, 2)
	assert.Equal(t, []string{"std.common.macros", "std.common.values"}, levels[0].Modules)
	assert.Equal(t, []string{"std.sums"}, levels[1].Modules)
}

func TestMacrosCommand(t *testing.T) {
	project := testutil.SetupTestProject(t)

	_, _, err := execute(t, project, "CREATE PERFETTO MACRO triple(x Expr) RETURNS Expr AS ($x) * 3;", "run")
	require.NoError(t, err)

	out, _, err := execute(t, project, "", "macros", "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "triple,x Expr,Expr,stdin")
	assert.NotContains(t, out, "std_double", "module macros are not persisted")

	out, _, err = execute(t, project, "SELECT triple!(2) AS v;", "run", "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "v\n6\n", out)

	_, _, err = execute(t, project, "", "macros", "delete", "triple")
	require.NoError(t, err)
	out, _, err = execute(t, project, "", "macros", "show", "triple")
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestMacrosCommand_NoStore(t *testing.T) {
	_, _, err := execute(t, t.TempDir(), "", "macros")
	require.ErrorContains(t, err, "no state store")
}
