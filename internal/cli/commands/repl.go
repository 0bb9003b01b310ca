package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/perfettosql/internal/modules"
	"github.com/leapstack-labs/perfettosql/internal/registry"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "perfettosql> "
	replContPrompt = "       ...> "
	replSourceName = "repl"
)

// NewReplCommand creates the repl command.
func NewReplCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive PerfettoSQL shell",
		Long: `Start an interactive shell connected to the configured backend.

Statements accumulate across lines until one ends with a semicolon. Macros,
functions and modules defined in the session stay available until exit.`,
		Example: `  # In-memory SQLite session with the std package
  perfettosql repl --package std=./stdlib

  # Reload package files as they change
  perfettosql repl --package std=./stdlib --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd)
		},
	}

	cmd.Flags().Bool("watch", false, "Reload module files when they change")

	return cmd
}

func runRepl(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cc.Cfg.Watch {
		go func() {
			err := cc.Engine.Modules().Watch(ctx, func(c modules.Change) {
				cc.Logger.Info("module reloaded", slog.String("module", c.Key), slog.Bool("removed", c.Removed))
			})
			if err != nil {
				cc.Logger.Warn("module watcher stopped", slog.Any("error", err))
			}
		}()
	}

	var historyFile string
	if cc.Cfg.StatePath != "" {
		historyFile = filepath.Join(filepath.Dir(cc.Cfg.StatePath), "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newReplCompleter(cc),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "PerfettoSQL shell (backend: %s)\n", cc.Cfg.Backend.Type)
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if buf.Len() == 0 {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, ".") {
				if quit := handleReplCommand(cc, out, trimmed); quit {
					return nil
				}
				continue
			}
		}

		buf.WriteString(line)
		buf.WriteString("\n")
		if !strings.HasSuffix(trimmed, ";") {
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		sql := buf.String()
		buf.Reset()
		res, err := cc.Engine.ExecuteString(ctx, replSourceName, sql)
		if err != nil {
			cc.Renderer.Error(err)
			continue
		}
		if err := cc.Renderer.Result(res.Columns, res.Rows); err != nil {
			cc.Renderer.Error(err)
		}
	}
}

// handleReplCommand runs a dot command and reports whether the shell should exit.
func handleReplCommand(cc *CommandContext, w io.Writer, line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printReplHelp(w)
	case ".tables":
		printObjects(w, cc.Engine.Registry(), registry.KindTable, registry.KindView)
	case ".functions":
		printObjects(w, cc.Engine.Registry(), registry.KindFunction)
	case ".macros":
		for _, name := range cc.Engine.Macros().Names() {
			_, _ = fmt.Fprintln(w, name)
		}
	case ".modules":
		for _, m := range cc.Engine.Modules().Modules() {
			mark := " "
			if cc.Engine.Modules().Included(m.Key) {
				mark = "*"
			}
			_, _ = fmt.Fprintf(w, "%s %s\n", mark, m.Key)
		}
	default:
		cc.Renderer.Warning("Unknown command: %s (type .help for commands)", parts[0])
	}
	return false
}

func printObjects(w io.Writer, reg *registry.Registry, kinds ...registry.Kind) {
	for _, k := range kinds {
		for _, obj := range reg.Objects(k) {
			_, _ = fmt.Fprintf(w, "%-8s %s\n", k, obj.Name)
		}
	}
}

func printReplHelp(w io.Writer) {
	help := `Commands:
  .help           Show this help message
  .tables         List tables and views created in this session
  .functions      List functions created in this session
  .macros         List macros
  .modules        List modules (* marks included ones)
  .quit / .exit   Exit the shell

Statements run once a line ends with a semicolon (;).`
	_, _ = fmt.Fprintln(w, help)
}

// newReplCompleter completes dot commands, macro invocations and module keys.
func newReplCompleter(cc *CommandContext) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".functions"),
		readline.PcItem(".macros"),
		readline.PcItem(".modules"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	}

	var keys []readline.PrefixCompleterInterface
	for _, m := range cc.Engine.Modules().Modules() {
		keys = append(keys, readline.PcItem(m.Key+";"))
	}
	items = append(items, readline.PcItem("INCLUDE PERFETTO MODULE", keys...))

	for _, name := range cc.Engine.Macros().Names() {
		items = append(items, readline.PcItem(name+"!("))
	}
	return readline.NewPrefixCompleter(items...)
}
