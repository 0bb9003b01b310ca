// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/perfettosql/internal/cli/output"
)

// projectFiles is the layout created by SetupTestProject: a config file and
// a "std" package whose modules include each other.
var projectFiles = map[string]string{
	"perfettosql.yaml": `backend:
  type: sqlite
packages:
  std: stdlib
state_path: .perfettosql/state.db
`,
	"stdlib/common/values.sql": `CREATE PERFETTO TABLE std_values AS
SELECT 1 AS v UNION ALL SELECT 2 UNION ALL SELECT 3;
`,
	"stdlib/common/macros.sql": `CREATE PERFETTO MACRO std_double(x Expr) RETURNS Expr AS ($x) * 2;
`,
	"stdlib/sums.sql": `INCLUDE PERFETTO MODULE std.common.values;
INCLUDE PERFETTO MODULE std.common.macros;

CREATE PERFETTO VIEW std_doubled(v LONG) AS
SELECT std_double!(v) AS v FROM std_values;
`,
	"queries/total.sql": `INCLUDE PERFETTO MODULE std.sums;
SELECT SUM(v) AS total FROM std_doubled;
`,
}

// SetupTestProject creates a temporary project with a perfettosql.yaml, a
// "std" module package and a query under queries/.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range projectFiles {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

// WriteFile writes content to name below dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
