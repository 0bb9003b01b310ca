// Package server exposes an engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/perfettosql/internal/engine"
	"github.com/leapstack-labs/perfettosql/internal/modules"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the HTTP server.
type Config struct {
	Engine *engine.Engine
	Addr   string
	Watch  bool
	Logger *slog.Logger
}

// Server serves queries against one engine. Engines are single-threaded, so
// requests that touch it are serialized.
type Server struct {
	mu     sync.Mutex
	engine *engine.Engine
	addr   string
	watch  bool
	logger *slog.Logger
}

// New creates a new server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine: cfg.Engine,
		addr:   cfg.Addr,
		watch:  cfg.Watch,
		logger: logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/macros", s.handleMacros)
		r.Get("/macros/{name}", s.handleMacro)
		r.Get("/objects", s.handleObjects)
		r.Get("/modules", s.handleModules)
	})
	return r
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.engine.Modules().Watch(egctx, s.onModuleChange)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) onModuleChange(c modules.Change) {
	if c.Removed {
		s.logger.Info("module removed", slog.String("module", c.Key), slog.String("path", c.Path))
		return
	}
	s.logger.Info("module changed", slog.String("module", c.Key), slog.String("path", c.Path))
}

// maxQueryBytes bounds request bodies.
const maxQueryBytes = 4 << 20

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxQueryBytes))
}
