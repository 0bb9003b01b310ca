package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leapstack-labs/perfettosql/internal/cli/output"
	"github.com/leapstack-labs/perfettosql/internal/engine"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Jobs  int
	Quiet bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [file.sql...]",
		Short: "Execute PerfettoSQL files",
		Long: `Execute one or more PerfettoSQL files against the configured backend.

Each file runs in its own engine, so macros, functions and included modules
do not leak between files. The result of the last statement of each file is
printed in the configured output format. With no files, SQL is read from stdin.

Backends share one scalar function namespace per process, so files that
define functions with the same name should not run in parallel.`,
		Example: `  # Run a file against an in-memory SQLite database
  perfettosql run metrics.sql

  # Run files four at a time against DuckDB
  perfettosql run --backend duckdb --database trace.duckdb -j 4 q1.sql q2.sql

  # Pipe SQL in
  echo "SELECT 1 + 1;" | perfettosql run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "Number of files to run in parallel")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Do not print results")

	return cmd
}

// fileResult is the outcome of one input.
type fileResult struct {
	out bytes.Buffer
	res *engine.Result
	err error
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	inputs, err := readInputs(cmd, args)
	if err != nil {
		return err
	}
	cc := NewCommandContextWithoutEngine(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	var run *core.Run
	if store != nil {
		if run, err = store.CreateRun(names); err != nil {
			return err
		}
	}

	start := time.Now()
	results := make([]*fileResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Jobs, 1))
	for i, in := range inputs {
		fr := &fileResult{}
		results[i] = fr
		g.Go(func() error {
			eng, closeEngine, err := createEngine(gctx, cc.Cfg, store, cc.Logger)
			if err != nil {
				fr.err = err
				return err
			}
			defer closeEngine()

			fr.res, fr.err = eng.ExecuteString(gctx, in.Name, in.SQL)
			cc.Logger.Debug("file finished",
				slog.String("file", in.Name),
				slog.Int("statements", statements(fr.res)),
				slog.Bool("ok", fr.err == nil))
			if fr.err != nil {
				return fr.err
			}
			if opts.Quiet {
				return nil
			}
			r := output.NewRendererWithTTY(&fr.out, cmd.ErrOrStderr(), cc.Renderer.IsTTY(), output.Mode(cc.Cfg.Output))
			return r.Result(fr.res.Columns, fr.res.Rows)
		})
	}
	runErr := g.Wait()

	total := 0
	for i, fr := range results {
		total += statements(fr.res)
		if fr.out.Len() == 0 {
			continue
		}
		if len(results) > 1 {
			cc.Renderer.Muted("-- %s", inputs[i].Name)
		}
		_, _ = cc.Renderer.Out().Write(fr.out.Bytes())
	}

	if run != nil {
		status, msg := core.RunStatusCompleted, ""
		switch {
		case errors.Is(runErr, context.Canceled):
			status, msg = core.RunStatusCancelled, runErr.Error()
		case runErr != nil:
			status, msg = core.RunStatusFailed, runErr.Error()
		}
		if err := store.CompleteRun(run.ID, status, total, msg); err != nil {
			cc.Logger.Warn("failed to record run", slog.String("run", run.ID), slog.Any("error", err))
		}
	}

	if runErr != nil {
		return runErr
	}
	cc.Logger.Info("run complete",
		slog.Int("files", len(inputs)),
		slog.Int("statements", total),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func statements(res *engine.Result) int {
	if res == nil {
		return 0
	}
	return res.Stats.StatementCount
}
