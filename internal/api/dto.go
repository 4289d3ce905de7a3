package api

import (
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/reconcile"
)

// SubmitRequest is the request body for submitting a contribution.
type SubmitRequest struct {
	ModuleType string `json:"module_type"`
	ParamID    string `json:"param_id"`
	reconcile.Payload
}

// RejectRequest carries the rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// SubmitResponse wraps the routed contribution. NoChanges is set when
// the submission matched the canonical record and nothing was written.
type SubmitResponse struct {
	NoChanges    bool                 `json:"no_changes,omitempty"`
	Contribution *models.Contribution `json:"contribution,omitempty"`
}

// ContributionListResponse wraps a contribution listing.
type ContributionListResponse struct {
	Contributions []models.Contribution `json:"contributions"`
	Total         int                   `json:"total"`
}
