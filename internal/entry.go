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

	"github.com/tunehub/paramlens/internal/api"
	"github.com/tunehub/paramlens/internal/detector"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/sse"
	"github.com/tunehub/paramlens/internal/store"
	"github.com/tunehub/paramlens/internal/winquery"
	"github.com/tunehub/paramlens/internal/workflow"
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
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("marker", cfg.Host.Marker),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize storage.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Session, optionally seeded from config for local single-user runs.
	sess := session.New(db, logger)
	if cfg.Session.UID != "" {
		id := models.Identity{
			UID:        cfg.Session.UID,
			Email:      cfg.Session.Email,
			Screenname: cfg.Session.Screenname,
			Role:       models.ParseRole(cfg.Session.Role),
			Trusted:    cfg.Session.Trusted,
		}
		if err := db.PutUser(ctx, id); err != nil {
			return fmt.Errorf("seed identity: %w", err)
		}
		sess.SignIn(id)
		logger.Info("Signed in", slog.String("uid", id.UID), slog.String("role", string(id.Role)))
	}

	// Window query provider: injected, snapshot-backed, or an empty tree.
	provider := app.provider
	var snap *winquery.SnapProvider
	if provider == nil {
		if cfg.Host.Snapshot != "" {
			snap, err = winquery.NewSnapProvider(cfg.Host.Snapshot)
			if err != nil {
				return fmt.Errorf("load window snapshot: %w", err)
			}
			provider = snap
		} else {
			provider = winquery.NewTree()
		}
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Detector publishes every accepted text change to SSE clients.
	det := detector.New(provider, detector.Config{
		Marker:   cfg.Host.Marker,
		Interval: cfg.Host.PollInterval,
		MaxDepth: cfg.Host.MaxDepth,
	}, logger, func(ev detector.Event) {
		broker.PublishDetection(ev.Raw, ev.Param)
	})
	det.Enable()

	// Build API service and router.
	svc := workflow.NewService(db, logger)
	apiRouter := api.NewRouter(svc, sess, det, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Start the detection loop.
	g.Go(func() error {
		return det.Run(gCtx)
	})

	// Watch the snapshot fixture for edits.
	if snap != nil {
		g.Go(func() error {
			return snap.Watch(gCtx, logger)
		})
	}

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
