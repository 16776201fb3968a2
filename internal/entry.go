// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/sidecar/internal/api"
	"github.com/starford/sidecar/internal/journal"
	"github.com/starford/sidecar/internal/mcpserver"
	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/router"
	"github.com/starford/sidecar/internal/service"
	"github.com/starford/sidecar/internal/sidecar"
	"github.com/starford/sidecar/internal/sse"
	"github.com/starford/sidecar/internal/storage"
	"github.com/starford/sidecar/internal/watch"
	"github.com/starford/sidecar/internal/workspace"
)

// eventQueueSize bounds lifecycle events waiting for the router.
const eventQueueSize = 256

// runtime holds the components shared by every command.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	files    *storage.FS
	db       *journal.DB
	store    *sidecar.Store
	settings sidecar.Settings
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("journal: close failed", slog.String("error", err.Error()))
	}
}

func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.App.LogFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.App.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// setup builds logging, storage, the journal and the sidecar store.
func setup(opts ...Option) (*runtime, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Saved settings override the config file.
	settings, err := service.LoadSettings(cfg.Vault.SettingsFile(), cfg.Sidecar)
	if err != nil {
		return nil, fmt.Errorf("load sidecar settings: %w", err)
	}

	db, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	store := sidecar.New(files,
		sidecar.WithJournal(db),
		sidecar.WithLogger(logger),
	)

	logger.Info("Sidecar settings",
		slog.String("naming_pattern", settings.NamingPattern),
		slog.String("watched_folders", settings.Scope().String()),
		slog.Bool("auto_create", settings.AutoCreateOnNew),
		slog.Bool("auto_delete", settings.AutoDeleteSidecar),
		slog.Bool("auto_open", settings.AutoOpenSidecar))

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		files:    files,
		db:       db,
		store:    store,
		settings: settings,
	}, nil
}

func (rt *runtime) service(holder service.SettingsHolder) *service.Service {
	return service.New(rt.files, rt.store, holder,
		service.WithJournal(rt.db),
		service.WithSettingsFile(rt.cfg.Vault.SettingsFile()),
		service.WithLogger(rt.logger),
	)
}

// Run starts the watcher, the event router and the HTTP server and blocks
// until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger := rt.cfg, rt.logger

	// SSE broker doubles as the notice sink.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	panes := workspace.New(broker)
	events := make(chan models.Event, eventQueueSize)
	dispatcher := router.New(rt.store, rt.settings, panes, broker, logger)
	svc := rt.service(dispatcher)

	apiRouter := api.NewRouter(svc, panes, events, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"journal unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher feeds the router.
	g.Go(func() error {
		if err := watch.Feed(gCtx, rt.files.Root(), logger, events); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return dispatcher.Run(gCtx, events)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the watcher and router too.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup once the server has shut down.
var errShutdown = errors.New("shutdown")

// RunCreate creates the sidecar of the file at path and reports the result.
func RunCreate(ctx context.Context, path string, opts ...Option) (*service.CreateResult, error) {
	rt, err := setup(opts...)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	return rt.service(service.NewStaticSettings(rt.settings)).CreateForPath(ctx, path)
}

// RunBulk creates every missing in-scope sidecar and returns the count.
func RunBulk(ctx context.Context, opts ...Option) (int, error) {
	rt, err := setup(opts...)
	if err != nil {
		return 0, err
	}
	defer rt.close()

	return rt.service(service.NewStaticSettings(rt.settings)).BulkCreate(ctx)
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// another output is configured.
func RunMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	srv := mcpserver.New(rt.service(service.NewStaticSettings(rt.settings)), rt.files)
	rt.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
