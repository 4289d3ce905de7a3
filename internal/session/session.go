// Package session holds the active identity and its capabilities. The
// workflow receives a *Session explicitly instead of reaching for
// process globals, so tests can run several identities side by side.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/store"
)

// RefreshFunc re-establishes an expired credential with the identity
// backend. The workflow calls it at most once per failed store write.
type RefreshFunc func(ctx context.Context) error

// Session tracks at most one signed-in identity. Sign-in mechanics live
// outside this core; callers hand a resolved Identity to SignIn.
type Session struct {
	users   store.Store
	logger  *slog.Logger
	refresh RefreshFunc

	mu       sync.Mutex
	identity *models.Identity
}

// Option configures a Session.
type Option func(*Session)

// WithRefresh installs the credential refresh hook.
func WithRefresh(fn RefreshFunc) Option {
	return func(s *Session) { s.refresh = fn }
}

// New creates an empty session backed by the users collection in st.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{users: st, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn installs id as the active identity, replacing any previous one.
func (s *Session) SignIn(id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}

// SignOut clears the active identity.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
}

// Current returns a copy of the active identity, or ErrNoIdentity.
func (s *Session) Current() (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return models.Identity{}, apperr.ErrNoIdentity
	}
	return *s.identity, nil
}

// RoleOf resolves a user's role and trusted flag from the users
// collection. Any failure (store error, missing record) degrades to
// (user, untrusted): privilege checks fail closed.
func (s *Session) RoleOf(ctx context.Context, uid string) (models.Role, bool) {
	u, err := s.users.GetUser(ctx, uid)
	if err != nil {
		s.logger.Debug("role lookup failed, treating as unprivileged",
			slog.String("uid", uid), slog.String("error", err.Error()))
		return models.RoleUser, false
	}
	return u.Role, u.Trusted
}

// Privileged reports whether the active identity holds the admin role
// with the trusted flag, per the users collection right now.
func (s *Session) Privileged(ctx context.Context) bool {
	id, err := s.Current()
	if err != nil {
		return false
	}
	role, trusted := s.RoleOf(ctx, id.UID)
	return role == models.RoleAdmin && trusted
}

// Refresh invokes the credential refresh hook. Without a hook the
// expired credential stands and the original failure surfaces.
func (s *Session) Refresh(ctx context.Context) error {
	if s.refresh == nil {
		return apperr.ErrExpiredCredential
	}
	return s.refresh(ctx)
}
