// Package workflow turns submitted parameter annotations into routed,
// auditable change records: privileged identities write the canonical
// collection directly, everyone else lands in pending until a
// privileged review approves or rejects.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/reconcile"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/store"
)

// Service coordinates the store and the session for the review
// workflow.
type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a workflow service.
func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

// ParameterResult is a parameter read, tagged with the collection it
// came from.
type ParameterResult struct {
	Parameter models.Parameter `json:"parameter"`
	Status    models.Status    `json:"status"`
}

// Submit routes a payload for key according to the submitter's role. A
// privileged identity writes the canonical collection directly; others
// get (or overwrite) the single pending entry for the key. The old
// value is snapshotted from the canonical collection strictly before
// anything is written.
func (s *Service) Submit(ctx context.Context, sess *session.Session, key models.ParamKey, payload reconcile.Payload) (*models.Contribution, error) {
	id, err := sess.Current()
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetParameter(ctx, key)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("workflow: read canonical: %w", err)
	}

	if reconcile.Unchanged(payload, existing) {
		return nil, apperr.ErrNoChanges
	}

	// Resolve sees the raw payload so the details heuristics work on
	// what the client actually sent. The stamped snapshot then fills
	// only the old side when extraction left it empty.
	oldValue, newValue := reconcile.Resolve(payload)
	stampPairs(&payload, existing)
	if oldValue == "" {
		switch {
		case payload.OldDetails != "":
			oldValue = payload.OldDetails
		case payload.OldDescription != "":
			oldValue = payload.OldDescription
		case payload.OldName != "":
			oldValue = payload.OldName
		}
	}

	now := s.now()
	c := &models.Contribution{
		ID:             submissionID(key),
		Key:            key,
		Name:           payload.Name,
		Description:    payload.Description,
		Details:        payload.Details,
		OldValue:       oldValue,
		NewValue:       newValue,
		OldName:        payload.OldName,
		NewName:        payload.NewName,
		OldDescription: payload.OldDescription,
		NewDescription: payload.NewDescription,
		OldDetails:     payload.OldDetails,
		NewDetails:     payload.NewDetails,
		SubmittedBy:    id.Email,
		SubmittedAt:    now,
	}

	role, trusted := sess.RoleOf(ctx, id.UID)
	if role == models.RoleAdmin && trusted {
		c.Status = models.StatusApproved
		c.ApprovedBy = id.Email
		c.ApprovedAt = &now
		p := models.Parameter{
			Key:         key,
			Name:        payload.Name,
			Description: payload.Description,
			Details:     payload.Details,
			UpdatedBy:   id.Email,
			UpdatedAt:   now,
			ApprovedBy:  id.Email,
			ApprovedAt:  &now,
		}
		backfillParameter(&p, existing)
		if err := s.withRetry(ctx, sess, func() error {
			return s.store.UpsertParameter(ctx, p)
		}); err != nil {
			return nil, err
		}
		s.logger.Info("parameter written to canonical collection",
			slog.String("key", key.String()), slog.String("by", id.Email))
		return c, nil
	}

	c.Status = models.StatusPending
	if err := s.withRetry(ctx, sess, func() error {
		return s.store.UpsertPending(ctx, *c)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("contribution queued for review",
		slog.String("key", key.String()), slog.String("by", id.Email))
	return c, nil
}

// Approve copies a pending contribution into the canonical collection
// and removes it from pending. Privileged identities only.
func (s *Service) Approve(ctx context.Context, sess *session.Session, contributionID string) (*models.Contribution, error) {
	id, err := s.requirePrivileged(ctx, sess)
	if err != nil {
		return nil, err
	}

	c, err := s.store.GetPendingByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, apperr.ErrTerminalState
	}

	now := s.now()
	p := models.Parameter{
		Key:         c.Key,
		Name:        c.Name,
		Description: c.Description,
		Details:     c.Details,
		UpdatedBy:   c.SubmittedBy,
		UpdatedAt:   now,
		ApprovedBy:  id.Email,
		ApprovedAt:  &now,
	}
	if err := s.withRetry(ctx, sess, func() error {
		return s.store.UpsertParameter(ctx, p)
	}); err != nil {
		return nil, err
	}
	if err := s.store.DeletePending(ctx, c.Key); err != nil {
		return nil, fmt.Errorf("workflow: clear pending: %w", err)
	}

	c.Status = models.StatusApproved
	c.ApprovedBy = id.Email
	c.ApprovedAt = &now
	s.logger.Info("contribution approved",
		slog.String("id", c.ID), slog.String("key", c.Key.String()), slog.String("by", id.Email))
	return c, nil
}

// Reject stamps a pending contribution with the rejection metadata,
// moves it to the rejected collection for audit, and removes it from
// pending. The canonical collection is never touched.
func (s *Service) Reject(ctx context.Context, sess *session.Session, contributionID, reason string) (*models.Contribution, error) {
	id, err := s.requirePrivileged(ctx, sess)
	if err != nil {
		return nil, err
	}

	c, err := s.store.GetPendingByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, apperr.ErrTerminalState
	}

	now := s.now()
	c.Status = models.StatusRejected
	c.RejectedBy = id.Email
	c.RejectedAt = &now
	c.RejectionReason = reason

	if err := s.withRetry(ctx, sess, func() error {
		return s.store.AddRejected(ctx, *c)
	}); err != nil {
		return nil, err
	}
	if err := s.store.DeletePending(ctx, c.Key); err != nil {
		return nil, fmt.Errorf("workflow: clear pending: %w", err)
	}

	s.logger.Info("contribution rejected",
		slog.String("id", c.ID), slog.String("key", c.Key.String()), slog.String("by", id.Email))
	return c, nil
}

// ListPending returns every contribution waiting for review, newest
// first. Privileged identities only.
func (s *Service) ListPending(ctx context.Context, sess *session.Session) ([]models.Contribution, error) {
	if _, err := s.requirePrivileged(ctx, sess); err != nil {
		return nil, err
	}
	return s.store.ListPending(ctx)
}

// ListContributions aggregates the active identity's pending, approved,
// and rejected records into one list, newest first. Each record appears
// under exactly one status at any moment; rejected history can coexist
// with a later canonical entry for the same key.
func (s *Service) ListContributions(ctx context.Context, sess *session.Session) ([]models.Contribution, error) {
	id, err := sess.Current()
	if err != nil {
		return nil, err
	}

	var out []models.Contribution

	pending, err := s.store.PendingSubmittedBy(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("workflow: list pending: %w", err)
	}
	out = append(out, pending...)

	params, err := s.store.ParametersUpdatedBy(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("workflow: list approved: %w", err)
	}
	for _, p := range params {
		out = append(out, models.Contribution{
			ID:          p.Key.String(),
			Key:         p.Key,
			Name:        p.Name,
			Description: p.Description,
			Details:     p.Details,
			Status:      models.StatusApproved,
			SubmittedBy: p.UpdatedBy,
			SubmittedAt: p.UpdatedAt,
			ApprovedBy:  p.ApprovedBy,
			ApprovedAt:  p.ApprovedAt,
		})
	}

	rejected, err := s.store.RejectedSubmittedBy(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("workflow: list rejected: %w", err)
	}
	out = append(out, rejected...)

	// Older records may predate old/new tracking; backfill from what
	// they do carry rather than failing the listing.
	for i := range out {
		if out[i].OldValue == "" && out[i].NewValue == "" {
			out[i].OldValue, out[i].NewValue = reconcile.Resolve(reconcile.Payload{
				Name:        out[i].Name,
				Description: out[i].Description,
				Details:     out[i].Details,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return contributionTime(out[i]).After(contributionTime(out[j]))
	})
	return out, nil
}

// GetParameter reads a parameter: the canonical collection first, then
// pending. Pending entries are visible only to their submitter and to
// moderator or admin roles.
func (s *Service) GetParameter(ctx context.Context, sess *session.Session, key models.ParamKey) (*ParameterResult, error) {
	id, err := sess.Current()
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetParameter(ctx, key)
	if err == nil {
		return &ParameterResult{Parameter: *p, Status: models.StatusApproved}, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	c, err := s.store.GetPending(ctx, key)
	if err != nil {
		return nil, err
	}
	role, _ := sess.RoleOf(ctx, id.UID)
	if c.SubmittedBy != id.Email && role != models.RoleModerator && role != models.RoleAdmin {
		return nil, apperr.ErrPermissionDenied
	}
	return &ParameterResult{
		Parameter: models.Parameter{
			Key:         c.Key,
			Name:        c.Name,
			Description: c.Description,
			Details:     c.Details,
			UpdatedBy:   c.SubmittedBy,
			UpdatedAt:   c.SubmittedAt,
		},
		Status: models.StatusPending,
	}, nil
}

// requirePrivileged resolves the active identity and checks the
// privileged bit against the users collection.
func (s *Service) requirePrivileged(ctx context.Context, sess *session.Session) (models.Identity, error) {
	id, err := sess.Current()
	if err != nil {
		return models.Identity{}, err
	}
	role, trusted := sess.RoleOf(ctx, id.UID)
	if role != models.RoleAdmin || !trusted {
		return models.Identity{}, apperr.ErrNotPrivileged
	}
	return id, nil
}

// withRetry runs a store write, refreshing the credential and replaying
// exactly once when it expired. Permission denials surface verbatim.
func (s *Service) withRetry(ctx context.Context, sess *session.Session, fn func() error) error {
	err := fn()
	if !errors.Is(err, apperr.ErrExpiredCredential) {
		return err
	}
	if refreshErr := sess.Refresh(ctx); refreshErr != nil {
		return err
	}
	return fn()
}

// backfillParameter keeps canonical fields the submission did not
// carry. An empty payload field means "not changed", never "clear".
func backfillParameter(p *models.Parameter, existing *models.Parameter) {
	if existing == nil {
		return
	}
	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.Description == "" {
		p.Description = existing.Description
	}
	if p.Details == "" {
		p.Details = existing.Details
	}
}

// stampPairs records per-field old/new values against the canonical
// snapshot for every field the payload carries, unless the client
// already filled them.
func stampPairs(p *reconcile.Payload, existing *models.Parameter) {
	get := func(field string) string {
		if existing == nil {
			return ""
		}
		switch field {
		case "name":
			return existing.Name
		case "description":
			return existing.Description
		default:
			return existing.Details
		}
	}
	if p.Name != "" && p.NewName == "" {
		p.NewName, p.OldName = p.Name, get("name")
	}
	if p.Description != "" && p.NewDescription == "" {
		p.NewDescription, p.OldDescription = p.Description, get("description")
	}
	if p.Details != "" && p.NewDetails == "" {
		p.NewDetails, p.OldDetails = p.Details, get("details")
	}
}

// submissionID builds the original "{type}-{id}-{short uuid}" format.
func submissionID(key models.ParamKey) string {
	return fmt.Sprintf("%s-%s-%s",
		strings.ToLower(string(key.ModuleType)), key.ParamID, uuid.NewString()[:8])
}

func contributionTime(c models.Contribution) time.Time {
	switch c.Status {
	case models.StatusRejected:
		if c.RejectedAt != nil {
			return *c.RejectedAt
		}
		return c.SubmittedAt
	case models.StatusApproved:
		if c.ApprovedAt != nil {
			return *c.ApprovedAt
		}
		return c.SubmittedAt
	default:
		return c.SubmittedAt
	}
}
