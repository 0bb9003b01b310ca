// Package cli provides the command-line interface for PerfettoSQL.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/perfettosql/internal/cli/commands"
	"github.com/leapstack-labs/perfettosql/internal/cli/config"
	"github.com/leapstack-labs/perfettosql/internal/cli/output"
	"github.com/spf13/cobra"

	// Register the backend adapters.
	_ "github.com/leapstack-labs/perfettosql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/perfettosql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/perfettosql/pkg/adapters/sqlite"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "perfettosql",
		Short: "PerfettoSQL - SQL with macros, functions and modules",
		Long: `PerfettoSQL extends SQL with typed functions, tables and views, text
macros and includable modules, and runs the result on SQLite, DuckDB or
PostgreSQL.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			level, err := cfg.Level()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", slog.String("path", configFile))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{.Name}} {{.Version}}
commit %s, built %s
`, GitCommit, BuildDate))

	// Global persistent flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./perfettosql.yaml, searched upward)")
	flags.String("backend", "", "Backend to run on (sqlite|duckdb|postgres)")
	flags.String("database", "", "Database file for sqlite and duckdb (default in-memory)")
	flags.String("state", "", "Path to the state database for persisted macros and run history")
	flags.StringToString("package", nil, "Module package as name=dir (repeatable)")
	flags.Bool("strict", false, "Check that function arguments and results match their declared types")
	flags.Bool("strict-variables", false, "Reject undefined $variables outside function and macro definitions")
	flags.StringSlice("memoize", nil, "Functions to memoize (single integer argument)")
	flags.Int("max-recursion-depth", 0, "Maximum depth of recursive function calls")
	flags.StringP("output", "o", "", "Output format (auto|table|markdown|json|csv)")
	flags.BoolP("verbose", "v", false, "Verbose output (debug logging)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "duckdb", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewReplCommand())
	rootCmd.AddCommand(commands.NewExpandCommand())
	rootCmd.AddCommand(commands.NewParseCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewModulesCommand())
	rootCmd.AddCommand(commands.NewMacrosCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto).Error(err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for perfettosql.

To load completions:

Bash:
  $ source <(perfettosql completion bash)

Zsh:
  $ perfettosql completion zsh > "${fpath[1]}/_perfettosql"

Fish:
  $ perfettosql completion fish | source

PowerShell:
  PS> perfettosql completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
