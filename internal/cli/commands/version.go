package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information and available backends",
		Long: `Display the PerfettoSQL version and the backends that can be selected with
backend.type, together with the PerfettoSQL features each backend can host.`,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "perfettosql v%s\n", version)
			_, _ = fmt.Fprintln(w, "backends:")
			for _, b := range adapter.Backends() {
				_, _ = fmt.Fprintf(w, "  %-10s %s\n", b.Name, describeBackend(b))
			}
		},
	}
}

func describeBackend(b adapter.BackendInfo) string {
	var features []string
	if b.Functions {
		features = append(features, "functions")
	}
	if b.TableFunctions {
		features = append(features, "table functions")
	}
	if len(features) == 0 {
		return "tables, views, macros and indexes"
	}
	return "tables, views, macros, indexes, " + strings.Join(features, ", ")
}
