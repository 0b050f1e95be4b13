// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/noteforest/noteforest/internal/api"
	"github.com/noteforest/noteforest/internal/auth"
	"github.com/noteforest/noteforest/internal/importer"
	"github.com/noteforest/noteforest/internal/notify"
	"github.com/noteforest/noteforest/internal/noterepo"
	"github.com/noteforest/noteforest/internal/session"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("snapshot_path", cfg.Session.SnapshotPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize the SQLite note store.
	repo, err := noterepo.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init note store: %w", err)
	}
	defer repo.Close()

	// SSE hub; doubles as the session's notifier.
	hub := notify.NewHub(time.Second)
	defer hub.Close()

	// Auth manager backed by the note store's credential row.
	authMgr := auth.NewManager(repo, cfg.Auth.TTL(), logger)

	// Editing session. Confirmation prompts resolve from the request
	// context, so a dirty-tab close needs an explicit confirm=true retry.
	sess := session.New(repo, session.Config{
		Notifier:     hub,
		Confirmer:    api.RequestConfirmer(),
		SnapshotPath: cfg.Session.SnapshotPath,
		PageSize:     cfg.Session.PageSize,
		Logger:       logger,
		OnChange:     hub.SessionChanged,
	})
	sess.Rehydrate(ctx)

	apiRouter := api.NewRouter(api.Deps{
		Repo:    repo,
		Session: sess,
		Auth:    authMgr,
		Events:  hub,
	})

	// Build chi router.
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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Inbox importer.
	if cfg.Import.Enabled {
		g.Go(func() error {
			if err := importer.Watch(gCtx, sess, cfg.Import.InboxPath, logger); err != nil {
				return fmt.Errorf("importer: %w", err)
			}
			return nil
		})
	}

	// Expired auth session pruning.
	g.Go(func() error {
		authMgr.StartPruning(gCtx, cfg.Auth.PruneEvery())
		return nil
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

		// Flush the final session state so tabs and drafts survive restart.
		if err := sess.SaveSnapshot(); err != nil {
			logger.Error("Session snapshot error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
