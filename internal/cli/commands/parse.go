package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// StatementDoc describes one parsed statement.
type StatementDoc struct {
	Kind        string      `json:"kind" yaml:"kind"`
	Source      string      `json:"source" yaml:"source"`
	Position    string      `json:"position" yaml:"position"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Replace     bool        `json:"replace,omitempty" yaml:"replace,omitempty"`
	Args        []ColumnDoc `json:"args,omitempty" yaml:"args,omitempty"`
	Columns     []ColumnDoc `json:"columns,omitempty" yaml:"columns,omitempty"`
	Returns     string      `json:"returns,omitempty" yaml:"returns,omitempty"`
	Table       string      `json:"table,omitempty" yaml:"table,omitempty"`
	DelegatesTo string      `json:"delegates_to,omitempty" yaml:"delegates_to,omitempty"`
	Module      string      `json:"module,omitempty" yaml:"module,omitempty"`
	Body        string      `json:"body,omitempty" yaml:"body,omitempty"`
	SQL         string      `json:"sql,omitempty" yaml:"sql,omitempty"`
}

// ColumnDoc is a typed column, argument or macro parameter.
type ColumnDoc struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ParseOptions holds options for the parse command.
type ParseOptions struct {
	Format string
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse [file.sql...]",
		Short: "Print the parsed PerfettoSQL statements",
		Long: `Expand macros, split the input into statements and print what each
PerfettoSQL statement declares: functions, tables, views, macros, indexes and
module includes. Plain SQL statements are shown as passthrough.`,
		Example: `  # Show the statements of a module
  perfettosql parse stdlib/slices/core.sql

  # As JSON
  perfettosql parse --format json query.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "yaml", "Output format (yaml|json)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runParse(cmd *cobra.Command, args []string, opts *ParseOptions) error {
	format := strings.ToLower(opts.Format)
	if format != "yaml" && format != "json" {
		return fmt.Errorf("invalid format %q: expected yaml or json", opts.Format)
	}
	inputs, err := readInputs(cmd, args)
	if err != nil {
		return err
	}
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	docs := []StatementDoc{}
	for _, in := range inputs {
		stmts, err := cc.Engine.Parse(sourceText(in))
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			docs = append(docs, statementDoc(in.Name, stmt))
		}
	}

	w := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(docs)
}

func statementDoc(name string, stmt parser.Statement) StatementDoc {
	doc := StatementDoc{
		Kind:     stmt.Kind(),
		Source:   name,
		Position: stmt.Source().Start().String(),
	}
	switch s := stmt.(type) {
	case *parser.CreateFunction:
		doc.Name, doc.Replace = s.Name, s.Replace
		doc.Args = columnDocs(s.Args)
		if s.Returns.IsTable() {
			doc.Columns = columnDocs(s.Returns.Table)
			doc.Returns = "TABLE"
		} else {
			doc.Returns = s.Returns.Scalar.String()
		}
		doc.DelegatesTo = s.DelegatesTo
		doc.Body = bodyText(s.Body)
	case *parser.CreateTable:
		doc.Name, doc.Replace = s.Name, s.Replace
		doc.Columns = columnDocs(s.Schema)
		doc.Body = bodyText(s.Body)
	case *parser.CreateView:
		doc.Name, doc.Replace = s.Name, s.Replace
		doc.Columns = columnDocs(s.Schema)
		doc.Body = bodyText(s.Body)
	case *parser.CreateMacro:
		doc.Name, doc.Replace = s.Name, s.Replace
		for _, p := range s.Params {
			doc.Args = append(doc.Args, ColumnDoc{Name: p.Name, Type: p.Type})
		}
		doc.Returns = s.Returns
		doc.Body = bodyText(s.Body)
	case *parser.CreateIndex:
		doc.Name, doc.Replace = s.Name, s.Replace
		doc.Table = s.Table
		for _, c := range s.Columns {
			doc.Columns = append(doc.Columns, ColumnDoc{Name: c})
		}
	case *parser.DropIndex:
		doc.Name, doc.Table = s.Name, s.Table
	case *parser.IncludeModule:
		doc.Module = s.Key
	default:
		doc.SQL = strings.TrimSuffix(strings.TrimSpace(stmt.Source().Rewritten()), ";")
	}
	return doc
}

func columnDocs(cols []parser.Column) []ColumnDoc {
	docs := make([]ColumnDoc, 0, len(cols))
	for _, c := range cols {
		typ := c.Type.String()
		if c.Ref != "" {
			typ = fmt.Sprintf("%s(%s)", typ, c.Ref)
		}
		docs = append(docs, ColumnDoc{Name: c.Name, Type: typ})
	}
	return docs
}

func bodyText(t *source.Text) string {
	if t == nil {
		return ""
	}
	return strings.TrimSpace(t.Rewritten())
}
