package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/leapstack-labs/perfettosql/internal/cli/config"
	"github.com/leapstack-labs/perfettosql/internal/cli/output"
	"github.com/leapstack-labs/perfettosql/internal/engine"
	"github.com/leapstack-labs/perfettosql/internal/state"
	"github.com/leapstack-labs/perfettosql/pkg/adapter"
	"github.com/leapstack-labs/perfettosql/pkg/source"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Store    *state.SQLiteStore
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with a connected engine.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutEngine(cmd)

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	eng, closeEngine, err := createEngine(cmd.Context(), cc.Cfg, store, cc.Logger)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}
	cc.Engine = eng
	cc.Store = store

	cleanup := func() {
		closeEngine()
		if store != nil {
			_ = store.Close()
		}
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need database access.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}
}

// getConfig returns the loaded configuration, or the defaults when the
// command runs without the root command (tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// openStore opens the state store when state_path is configured.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	return store, nil
}

// createEngine connects the configured backend and builds an engine over it
// with every configured package registered and persisted macros loaded.
func createEngine(ctx context.Context, cfg *config.Config, store *state.SQLiteStore, logger *slog.Logger) (*engine.Engine, func(), error) {
	ac := cfg.Backend.AdapterConfig()
	db, err := adapter.NewAdapter(ac, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Connect(ctx, ac); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", ac.Type, err)
	}

	var opts []engine.Option
	if store != nil {
		opts = append(opts, engine.WithStore(store))
	}
	eng, err := engine.New(engine.Config{
		Logger:            logger,
		Strict:            cfg.Strict,
		StrictVariables:   cfg.StrictVariables,
		MaxRecursionDepth: cfg.MaxRecursionDepth,
		Memoize:           cfg.Memoize,
	}, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	cleanup := func() {
		_ = eng.Close()
		_ = db.Close()
	}

	names := make([]string, 0, len(cfg.Packages))
	for name := range cfg.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := eng.RegisterPackage(name, cfg.Packages[name]); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to register package %s: %w", name, err)
		}
	}

	if n, err := eng.LoadMacros(); err != nil {
		cleanup()
		return nil, nil, err
	} else if n > 0 {
		logger.Debug("loaded persisted macros", slog.Int("count", n))
	}
	return eng, cleanup, nil
}

// errNoInput is returned when a command needs SQL but got neither files nor piped stdin.
var errNoInput = errors.New("no input: pass one or more .sql files or pipe SQL on stdin")

// input is one named SQL text.
type input struct {
	Name string
	SQL  string
}

func sourceText(in input) *source.Text {
	return source.New(in.Name, in.SQL)
}

// readInputs reads the named files, "-" or piped stdin when no file is given.
func readInputs(cmd *cobra.Command, args []string) ([]input, error) {
	if len(args) == 0 {
		if output.IsTerminal(cmd.InOrStdin()) {
			return nil, errNoInput
		}
		args = []string{"-"}
	}
	inputs := make([]input, 0, len(args))
	for _, arg := range args {
		if arg == "-" {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			inputs = append(inputs, input{Name: "stdin", SQL: string(b)})
			continue
		}
		b, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		inputs = append(inputs, input{Name: arg, SQL: string(b)})
	}
	return inputs, nil
}
