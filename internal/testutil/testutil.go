// Package testutil provides shared test helpers for setting up databases, sessions, and window trees.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/store"
	"github.com/tunehub/paramlens/internal/winquery"
)

// TestStore creates a temporary SQLite database that is automatically cleaned up.
func TestStore(t *testing.T) *store.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "paramlens-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger returns a quiet logger for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Moderator is a privileged identity (admin role, trusted).
func Moderator() models.Identity {
	return models.Identity{
		UID:        "mod-1",
		Email:      "mod@example.com",
		Screenname: "mod",
		Role:       models.RoleAdmin,
		Trusted:    true,
	}
}

// Contributor is an ordinary untrusted identity.
func Contributor() models.Identity {
	return models.Identity{
		UID:        "user-1",
		Email:      "user@example.com",
		Screenname: "user",
		Role:       models.RoleUser,
	}
}

// SignedIn stores the identity and returns a session with it signed in.
func SignedIn(t *testing.T, st store.Store, id models.Identity, opts ...session.Option) *session.Session {
	t.Helper()
	if err := st.PutUser(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	sess := session.New(st, Logger(), opts...)
	sess.SignIn(id)
	return sess
}

// EditorTree builds a window tree with a host editor window whose edit
// control shows the given text. Returns the tree and the edit handle.
func EditorTree(marker, text string) (*winquery.Tree, winquery.Handle) {
	tree := winquery.NewTree()
	win := tree.AddTopLevel(marker + " 4.10")
	tree.AddChild(win, "Button", "OK")
	edit := tree.AddChild(win, "Edit", text)
	return tree, edit
}
