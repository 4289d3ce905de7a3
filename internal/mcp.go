package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tunehub/paramlens/internal/mcpserver"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/store"
	"github.com/tunehub/paramlens/internal/workflow"
)

// RunMCP serves the MCP tool surface over stdio. The detector and HTTP
// server are not started; only the workflow and parser are exposed.
// Logs go to stderr so stdout stays clean for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

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
	}

	svc := workflow.NewService(db, logger)

	logger.Info("Starting MCP server on stdio")
	return mcpserver.New(svc, sess).ServeStdio()
}
