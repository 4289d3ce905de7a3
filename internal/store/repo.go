package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/models"
)

// GetUser returns the identity record for uid.
func (s *SQLite) GetUser(ctx context.Context, uid string) (*models.Identity, error) {
	var id models.Identity
	var role string
	var trusted int
	err := s.conn.QueryRowContext(ctx,
		`SELECT uid, email, screenname, role, trusted FROM users WHERE uid = ?`, uid,
	).Scan(&id.UID, &id.Email, &id.Screenname, &role, &trusted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	id.Role = models.ParseRole(role)
	id.Trusted = trusted != 0
	return &id, nil
}

// PutUser inserts or replaces a user record.
func (s *SQLite) PutUser(ctx context.Context, id models.Identity) error {
	trusted := 0
	if id.Trusted {
		trusted = 1
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (uid, email, screenname, role, trusted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email      = excluded.email,
			screenname = excluded.screenname,
			role       = excluded.role,
			trusted    = excluded.trusted
	`, id.UID, id.Email, id.Screenname, string(id.Role), trusted)
	if err != nil {
		return fmt.Errorf("store: put user: %w", err)
	}
	return nil
}

// GetParameter returns the canonical record for key.
func (s *SQLite) GetParameter(ctx context.Context, key models.ParamKey) (*models.Parameter, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT module_type, param_id, name, description, details,
		       updated_by, updated_at, approved_by, approved_at
		FROM parameters WHERE module_type = ? AND param_id = ?
	`, string(key.ModuleType), key.ParamID)
	p, err := scanParameter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get parameter: %w", err)
	}
	return p, nil
}

// UpsertParameter writes a canonical record under its natural key.
func (s *SQLite) UpsertParameter(ctx context.Context, p models.Parameter) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO parameters (module_type, param_id, name, description, details,
		                        updated_by, updated_at, approved_by, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module_type, param_id) DO UPDATE SET
			name        = excluded.name,
			description = excluded.description,
			details     = excluded.details,
			updated_by  = excluded.updated_by,
			updated_at  = excluded.updated_at,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at
	`, string(p.Key.ModuleType), p.Key.ParamID, p.Name, p.Description, p.Details,
		p.UpdatedBy, p.UpdatedAt, p.ApprovedBy, nullTimePtr(p.ApprovedAt))
	if err != nil {
		return fmt.Errorf("store: upsert parameter: %w", err)
	}
	return nil
}

// ParametersUpdatedBy returns canonical records last touched by updatedBy.
func (s *SQLite) ParametersUpdatedBy(ctx context.Context, updatedBy string) ([]models.Parameter, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT module_type, param_id, name, description, details,
		       updated_by, updated_at, approved_by, approved_at
		FROM parameters WHERE updated_by = ?
	`, updatedBy)
	if err != nil {
		return nil, fmt.Errorf("store: parameters by updater: %w", err)
	}
	defer rows.Close()

	var out []models.Parameter
	for rows.Next() {
		p, err := scanParameter(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan parameter: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPending returns the pending contribution for key, if any.
func (s *SQLite) GetPending(ctx context.Context, key models.ParamKey) (*models.Contribution, error) {
	row := s.conn.QueryRowContext(ctx, pendingSelect+` WHERE module_type = ? AND param_id = ?`,
		string(key.ModuleType), key.ParamID)
	return pendingFromRow(row)
}

// GetPendingByID returns the pending contribution with the given
// submission id.
func (s *SQLite) GetPendingByID(ctx context.Context, id string) (*models.Contribution, error) {
	row := s.conn.QueryRowContext(ctx, pendingSelect+` WHERE id = ?`, id)
	return pendingFromRow(row)
}

// UpsertPending writes a pending contribution under its natural key,
// overwriting any earlier pending entry for the same parameter.
func (s *SQLite) UpsertPending(ctx context.Context, c models.Contribution) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO pending (module_type, param_id, id, name, description, details,
		                     old_value, new_value, old_name, new_name,
		                     old_description, new_description, old_details, new_details,
		                     submitted_by, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module_type, param_id) DO UPDATE SET
			id              = excluded.id,
			name            = excluded.name,
			description     = excluded.description,
			details         = excluded.details,
			old_value       = excluded.old_value,
			new_value       = excluded.new_value,
			old_name        = excluded.old_name,
			new_name        = excluded.new_name,
			old_description = excluded.old_description,
			new_description = excluded.new_description,
			old_details     = excluded.old_details,
			new_details     = excluded.new_details,
			submitted_by    = excluded.submitted_by,
			submitted_at    = excluded.submitted_at
	`, string(c.Key.ModuleType), c.Key.ParamID, c.ID, c.Name, c.Description, c.Details,
		c.OldValue, c.NewValue, c.OldName, c.NewName,
		c.OldDescription, c.NewDescription, c.OldDetails, c.NewDetails,
		c.SubmittedBy, c.SubmittedAt)
	if err != nil {
		return fmt.Errorf("store: upsert pending: %w", err)
	}
	return nil
}

// DeletePending removes the pending entry for key.
func (s *SQLite) DeletePending(ctx context.Context, key models.ParamKey) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM pending WHERE module_type = ? AND param_id = ?`,
		string(key.ModuleType), key.ParamID)
	if err != nil {
		return fmt.Errorf("store: delete pending: %w", err)
	}
	return nil
}

// ListPending returns every pending contribution, newest first.
func (s *SQLite) ListPending(ctx context.Context) ([]models.Contribution, error) {
	return s.queryPending(ctx, pendingSelect+` ORDER BY submitted_at DESC`)
}

// PendingSubmittedBy returns pending contributions submitted by submittedBy.
func (s *SQLite) PendingSubmittedBy(ctx context.Context, submittedBy string) ([]models.Contribution, error) {
	return s.queryPending(ctx, pendingSelect+` WHERE submitted_by = ?`, submittedBy)
}

// AddRejected records a rejected contribution in the audit collection.
func (s *SQLite) AddRejected(ctx context.Context, c models.Contribution) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO rejected_parameters
			(id, module_type, param_id, name, description, details,
			 old_value, new_value, submitted_by, submitted_at,
			 rejected_by, rejected_at, rejection_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.Key.ModuleType), c.Key.ParamID, c.Name, c.Description, c.Details,
		c.OldValue, c.NewValue, c.SubmittedBy, nullTime(c.SubmittedAt),
		c.RejectedBy, nullTimePtr(c.RejectedAt), c.RejectionReason)
	if err != nil {
		return fmt.Errorf("store: add rejected: %w", err)
	}
	return nil
}

// RejectedSubmittedBy returns rejected contributions submitted by submittedBy.
func (s *SQLite) RejectedSubmittedBy(ctx context.Context, submittedBy string) ([]models.Contribution, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, module_type, param_id, name, description, details,
		       old_value, new_value, submitted_by, submitted_at,
		       rejected_by, rejected_at, rejection_reason
		FROM rejected_parameters WHERE submitted_by = ?
	`, submittedBy)
	if err != nil {
		return nil, fmt.Errorf("store: rejected by submitter: %w", err)
	}
	defer rows.Close()

	var out []models.Contribution
	for rows.Next() {
		var c models.Contribution
		var mt string
		var submittedAt, rejectedAt sql.NullTime
		if err := rows.Scan(&c.ID, &mt, &c.Key.ParamID, &c.Name, &c.Description, &c.Details,
			&c.OldValue, &c.NewValue, &c.SubmittedBy, &submittedAt,
			&c.RejectedBy, &rejectedAt, &c.RejectionReason); err != nil {
			return nil, fmt.Errorf("store: scan rejected: %w", err)
		}
		c.Key.ModuleType = models.ModuleType(mt)
		c.SubmittedAt = submittedAt.Time
		if rejectedAt.Valid {
			t := rejectedAt.Time
			c.RejectedAt = &t
		}
		c.Status = models.StatusRejected
		out = append(out, c)
	}
	return out, rows.Err()
}

const pendingSelect = `
	SELECT module_type, param_id, id, name, description, details,
	       old_value, new_value, old_name, new_name,
	       old_description, new_description, old_details, new_details,
	       submitted_by, submitted_at
	FROM pending`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParameter(row rowScanner) (*models.Parameter, error) {
	var p models.Parameter
	var mt string
	var approvedAt sql.NullTime
	err := row.Scan(&mt, &p.Key.ParamID, &p.Name, &p.Description, &p.Details,
		&p.UpdatedBy, &p.UpdatedAt, &p.ApprovedBy, &approvedAt)
	if err != nil {
		return nil, err
	}
	p.Key.ModuleType = models.ModuleType(mt)
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	return &p, nil
}

func scanPending(row rowScanner) (*models.Contribution, error) {
	var c models.Contribution
	var mt string
	err := row.Scan(&mt, &c.Key.ParamID, &c.ID, &c.Name, &c.Description, &c.Details,
		&c.OldValue, &c.NewValue, &c.OldName, &c.NewName,
		&c.OldDescription, &c.NewDescription, &c.OldDetails, &c.NewDetails,
		&c.SubmittedBy, &c.SubmittedAt)
	if err != nil {
		return nil, err
	}
	c.Key.ModuleType = models.ModuleType(mt)
	c.Status = models.StatusPending
	return &c, nil
}

func pendingFromRow(row *sql.Row) (*models.Contribution, error) {
	c, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get pending: %w", err)
	}
	return c, nil
}

func (s *SQLite) queryPending(ctx context.Context, query string, args ...any) ([]models.Contribution, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query pending: %w", err)
	}
	defer rows.Close()

	var out []models.Contribution
	for rows.Next() {
		c, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan pending: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(*t)
}
