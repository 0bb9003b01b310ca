package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/perfettosql/internal/cli/output"
	"github.com/spf13/cobra"
)

// ExpandedStatement is one statement of the expand command's JSON output.
type ExpandedStatement struct {
	Source   string `json:"source"`
	Position string `json:"position"`
	SQL      string `json:"sql"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand [file.sql...]",
		Short: "Print SQL with macros expanded",
		Long: `Expand every macro invocation and print the resulting statements without
running them. Macros defined earlier in the input and persisted macros are
available.

Output adapts to environment:
  - Terminal: Plain SQL
  - Piped/Scripted: Markdown with code block`,
		Example: `  # Expand a file
  perfettosql expand metrics.sql

  # Expand as JSON with statement positions
  perfettosql expand metrics.sql --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd, args)
		},
	}

	return cmd
}

func runExpand(cmd *cobra.Command, args []string) error {
	inputs, err := readInputs(cmd, args)
	if err != nil {
		return err
	}
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var stmts []ExpandedStatement
	for _, in := range inputs {
		texts, err := cc.Engine.Expand(sourceText(in))
		if err != nil {
			return err
		}
		for _, t := range texts {
			stmts = append(stmts, ExpandedStatement{
				Source:   in.Name,
				Position: t.Start().String(),
				SQL:      strings.TrimSuffix(strings.TrimSpace(t.Rewritten()), ";"),
			})
		}
	}

	w := cc.Renderer.Out()
	switch cc.Renderer.EffectiveMode() {
	case output.ModeJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stmts)
	case output.ModeMarkdown:
		_, _ = fmt.Fprintln(w, "```sql")
		printStatements(w, stmts)
		_, _ = fmt.Fprintln(w, "```")
	default:
		printStatements(w, stmts)
	}
	return nil
}

func printStatements(w io.Writer, stmts []ExpandedStatement) {
	for _, s := range stmts {
		_, _ = fmt.Fprintf(w, "%s;\n", s.SQL)
	}
}
