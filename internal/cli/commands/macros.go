package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// errNoStore is returned by commands that need the state store when
// state_path is not configured.
var errNoStore = errors.New("no state store: set state_path or pass --state")

// NewMacrosCommand creates the macros command.
func NewMacrosCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macros",
		Short: "Manage persisted macros",
		Long: `List the macros saved in the state store. Macros created with
CREATE PERFETTO MACRO outside of modules are saved when a state store is
configured and are loaded by every later engine.`,
		Example: `  # List persisted macros
  perfettosql macros --state .perfettosql/state.db

  # Show one macro
  perfettosql macros show slice_count

  # Forget a macro
  perfettosql macros delete slice_count`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMacrosList(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show a persisted macro",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMacrosShow(cmd, args[0])
			},
		},
		&cobra.Command{
			Use:   "delete <name>...",
			Short: "Delete persisted macros",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMacrosDelete(cmd, args)
			},
		},
	)

	return cmd
}

// withStore opens the state store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(cc *CommandContext) error) error {
	cc := NewCommandContextWithoutEngine(cmd)
	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	if store == nil {
		return errNoStore
	}
	defer func() { _ = store.Close() }()
	cc.Store = store
	return fn(cc)
}

func runMacrosList(cmd *cobra.Command) error {
	return withStore(cmd, func(cc *CommandContext) error {
		macros, err := cc.Store.ListMacros()
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(macros))
		for _, m := range macros {
			params := make([]string, len(m.Params))
			for i, p := range m.Params {
				params[i] = p.Name + " " + p.Type
			}
			rows = append(rows, []string{
				m.Name,
				strings.Join(params, ", "),
				m.Returns,
				m.SourceName,
				m.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return renderStrings(cc.Renderer, []string{"name", "params", "returns", "source", "updated"}, rows)
	})
}

func runMacrosShow(cmd *cobra.Command, name string) error {
	return withStore(cmd, func(cc *CommandContext) error {
		m, err := cc.Store.GetMacro(name)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("macro not found: %s", name)
		}
		params := make([]string, len(m.Params))
		for i, p := range m.Params {
			params[i] = p.Name + " " + p.Type
		}
		_, _ = fmt.Fprintf(cc.Renderer.Out(), "CREATE PERFETTO MACRO %s(%s)\nRETURNS %s AS\n%s;\n",
			m.Name, strings.Join(params, ", "), m.Returns, m.Body)
		return nil
	})
}

func runMacrosDelete(cmd *cobra.Command, names []string) error {
	return withStore(cmd, func(cc *CommandContext) error {
		for _, name := range names {
			if err := cc.Store.DeleteMacro(name); err != nil {
				return err
			}
			cc.Renderer.Success("Deleted macro %s", name)
		}
		return nil
	})
}
