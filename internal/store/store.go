// Package store defines the keyed-collection contract the workflow
// writes through, and a SQLite implementation of it. The contract is
// deliberately small (point reads, field-equals queries, upserts by
// natural key, deletes) so any document or keyed-table backend can
// satisfy it.
package store

import (
	"context"

	"github.com/tunehub/paramlens/internal/models"
)

// Store is the collection contract. Implementations map missing records
// to apperr.ErrNotFound and backend auth failures to
// apperr.ErrPermissionDenied / apperr.ErrExpiredCredential so the
// workflow's routing and retry policy stays backend-agnostic.
type Store interface {
	// Users collection.
	GetUser(ctx context.Context, uid string) (*models.Identity, error)
	PutUser(ctx context.Context, id models.Identity) error

	// Canonical parameters, keyed by (module_type, param_id).
	GetParameter(ctx context.Context, key models.ParamKey) (*models.Parameter, error)
	UpsertParameter(ctx context.Context, p models.Parameter) error
	ParametersUpdatedBy(ctx context.Context, updatedBy string) ([]models.Parameter, error)

	// Pending contributions, keyed by (module_type, param_id); at most
	// one pending entry per key.
	GetPending(ctx context.Context, key models.ParamKey) (*models.Contribution, error)
	GetPendingByID(ctx context.Context, id string) (*models.Contribution, error)
	UpsertPending(ctx context.Context, c models.Contribution) error
	DeletePending(ctx context.Context, key models.ParamKey) error
	ListPending(ctx context.Context) ([]models.Contribution, error)
	PendingSubmittedBy(ctx context.Context, submittedBy string) ([]models.Contribution, error)

	// Rejected contributions, retained for audit and never deleted by
	// the workflow.
	AddRejected(ctx context.Context, c models.Contribution) error
	RejectedSubmittedBy(ctx context.Context, submittedBy string) ([]models.Contribution, error)

	Close() error
}
