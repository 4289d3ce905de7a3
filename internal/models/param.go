// Package models defines the domain types for paramlens.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ModuleType identifies which controller subsystem a parameter belongs to.
type ModuleType string

// Recognized module types. OTHER is the catch-all for tags that don't
// map to a known controller.
const (
	ModuleECM   ModuleType = "ECM"
	ModuleTCM   ModuleType = "TCM"
	ModuleBCM   ModuleType = "BCM"
	ModulePCM   ModuleType = "PCM"
	ModuleICM   ModuleType = "ICM"
	ModuleOther ModuleType = "OTHER"
)

// moduleTypes is the closed set accepted by ParseModuleType.
var moduleTypes = map[ModuleType]struct{}{
	ModuleECM:   {},
	ModuleTCM:   {},
	ModuleBCM:   {},
	ModulePCM:   {},
	ModuleICM:   {},
	ModuleOther: {},
}

// ParseModuleType maps a raw tag to a ModuleType, case-insensitively.
func ParseModuleType(s string) (ModuleType, error) {
	mt := ModuleType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := moduleTypes[mt]; !ok {
		return "", fmt.Errorf("unknown module type %q", s)
	}
	return mt, nil
}

// ParamKey is the natural key identifying a parameter across all
// collections: no two records in one collection share a key.
type ParamKey struct {
	ModuleType ModuleType `json:"module_type"`
	ParamID    string     `json:"param_id"`
}

func (k ParamKey) String() string {
	return string(k.ModuleType) + "/" + k.ParamID
}

// Parameter is a canonical (approved) parameter record. ApprovedAt is
// a pointer so records without an approval timestamp omit the field.
type Parameter struct {
	Key         ParamKey   `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Details     string     `json:"details"`
	UpdatedBy   string     `json:"updated_by"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}

// Status tracks a contribution through the review workflow. Approved and
// rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Contribution is a user-submitted change proposal for one parameter.
// OldValue is a snapshot of the canonical value read at submission time,
// not a live reference.
type Contribution struct {
	ID          string   `json:"id"`
	Key         ParamKey `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Details     string   `json:"details"`
	Status      Status   `json:"status"`
	OldValue    string   `json:"old_value"`
	NewValue    string   `json:"new_value"`

	// Per-field change tracking stamped at submission.
	OldName        string `json:"old_name,omitempty"`
	NewName        string `json:"new_name,omitempty"`
	OldDescription string `json:"old_description,omitempty"`
	NewDescription string `json:"new_description,omitempty"`
	OldDetails     string `json:"old_details,omitempty"`
	NewDetails     string `json:"new_details,omitempty"`

	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`

	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// Role is an identity's privilege level.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a stored role string to a Role, defaulting unknown
// values to RoleUser so a malformed user record never gains privileges.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleModerator:
		return RoleModerator
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Identity is the signed-in user as the workflow sees it.
type Identity struct {
	UID        string `json:"uid"`
	Email      string `json:"email"`
	Screenname string `json:"screenname,omitempty"`
	Role       Role   `json:"role"`
	Trusted    bool   `json:"trusted"`
}

// Privileged reports whether the identity may write canonical records
// directly and review pending ones: admin role with the trusted flag.
func (id Identity) Privileged() bool {
	return id.Role == RoleAdmin && id.Trusted
}

// DisplayName prefers the screenname over the email.
func (id Identity) DisplayName() string {
	if id.Screenname != "" {
		return id.Screenname
	}
	return id.Email
}
