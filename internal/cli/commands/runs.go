package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the history of run invocations",
		Long:  `List past invocations of the run command recorded in the state store, newest first.`,
		Example: `  # Last ten runs
  perfettosql runs --limit 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(cc *CommandContext) error {
				runs, err := cc.Store.ListRuns(limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					duration := ""
					if r.CompletedAt != nil {
						duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
					}
					rows = append(rows, []string{
						r.ID,
						string(r.Status),
						strings.Join(r.Inputs, ", "),
						strconv.Itoa(r.Statements),
						r.StartedAt.Local().Format("2006-01-02 15:04:05"),
						duration,
						r.Error,
					})
				}
				return renderStrings(cc.Renderer, []string{"id", "status", "inputs", "statements", "started", "duration", "error"}, rows)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	return cmd
}
