package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/perfettosql/internal/cli/config"
	"github.com/leapstack-labs/perfettosql/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve PerfettoSQL over HTTP",
		Long: `Start an HTTP server that executes PerfettoSQL against one engine.

Endpoints:
  POST /v1/query          Execute SQL ({"sql": "...", "name": "..."})
  GET  /v1/macros         List macros
  GET  /v1/macros/{name}  Show one macro with its body
  GET  /v1/objects        List tables, views, functions and indexes
  GET  /v1/modules        List modules and whether they are included
  GET  /healthz           Liveness check

Requests share the engine, so macros and tables created by one request are
visible to the next.`,
		Example: `  # Serve an in-memory database on the default address
  perfettosql serve

  # Serve a DuckDB file with the std package, reloading modules on change
  perfettosql serve --backend duckdb --database trace.duckdb --package std=./stdlib --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("addr", "", "Address to listen on (default "+config.DefaultServeAddr+")")
	cmd.Flags().Bool("watch", false, "Reload module files when they change")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Engine: cc.Engine,
		Addr:   cc.Cfg.Serve.Addr,
		Watch:  cc.Cfg.Watch,
		Logger: cc.Logger,
	})
	cc.Renderer.Success("Listening on http://%s", cc.Cfg.Serve.Addr)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
