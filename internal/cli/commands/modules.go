package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/perfettosql/internal/cli/output"
	"github.com/leapstack-labs/perfettosql/internal/modules"
	"github.com/spf13/cobra"
)

// NewModulesCommand creates the modules command.
func NewModulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List registered packages and their modules",
		Long: `List every module of the packages given with --package or the packages
section of perfettosql.yaml. A module's key is its package name followed by its
path inside the package, with the .sql extension dropped.`,
		Example: `  # List modules of a package
  perfettosql modules --package std=./stdlib

  # Show the include graph of one module
  perfettosql modules graph std.slices.core --package std=./stdlib`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModules(cmd)
		},
	}

	cmd.AddCommand(newModulesGraphCommand())

	return cmd
}

func runModules(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	set := cc.Engine.Modules()
	if len(set.Packages()) == 0 {
		cc.Renderer.Warning("No packages registered. Use --package name=dir or the packages config key.")
		return nil
	}

	var rows [][]string
	for _, m := range set.Modules() {
		rows = append(rows, []string{m.Key, m.Package, m.Path})
	}
	return renderStrings(cc.Renderer, []string{"module", "package", "path"}, rows)
}

// ModuleLevel is one level of the include graph.
type ModuleLevel struct {
	Level   int      `json:"level"`
	Modules []string `json:"modules"`
}

func newModulesGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [module...]",
		Short: "Show the include graph of modules",
		Long: `Include the given modules (all modules when none are given) and print the
resulting include graph by level. Modules on level 0 include nothing; every
other module only includes modules on lower levels.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModulesGraph(cmd, args)
		},
	}
}

func runModulesGraph(cmd *cobra.Command, keys []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(keys) == 0 {
		keys = []string{modules.AllModules}
	}
	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "INCLUDE PERFETTO MODULE %s;\n", key)
	}
	if _, err := cc.Engine.ExecuteString(cmd.Context(), "modules", b.String()); err != nil {
		return err
	}

	graph := cc.Engine.IncludeGraph()
	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to get include levels: %w", err)
	}

	r := cc.Renderer
	w := r.Out()
	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := make([]ModuleLevel, len(levels))
		for i, level := range levels {
			out[i] = ModuleLevel{Level: i, Modules: level}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case output.ModeMarkdown:
		_, _ = fmt.Fprintln(w, "# Include Graph")
		for i, level := range levels {
			_, _ = fmt.Fprintf(w, "\n## Level %d\n\n", i)
			for _, key := range level {
				_, _ = fmt.Fprintf(w, "- %s", key)
				if deps := graph.Parents(key); len(deps) > 0 {
					_, _ = fmt.Fprintf(w, " (includes: %s)", strings.Join(deps, ", "))
				}
				_, _ = fmt.Fprintln(w)
			}
		}
	default:
		styles := r.Styles()
		for i, level := range levels {
			_, _ = fmt.Fprintln(w, styles.Header.Render(fmt.Sprintf("Level %d:", i)))
			for _, key := range level {
				_, _ = fmt.Fprintf(w, "  %s\n", key)
				if deps := graph.Parents(key); len(deps) > 0 {
					_, _ = fmt.Fprintf(w, "    %s %s\n", styles.Muted.Render("includes:"), strings.Join(deps, ", "))
				}
				if users := graph.Children(key); len(users) > 0 {
					_, _ = fmt.Fprintf(w, "    %s %s\n", styles.Muted.Render("included by:"), strings.Join(users, ", "))
				}
			}
		}
		_, _ = fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("Total: %d modules, %d includes", graph.NodeCount(), graph.EdgeCount())))
	}
	return nil
}
