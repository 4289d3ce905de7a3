package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/detector"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/workflow"
)

// Handler holds API route handlers.
type Handler struct {
	svc  *workflow.Service
	sess *session.Session
	det  *detector.Detector
}

// NewHandler creates a new Handler.
func NewHandler(svc *workflow.Service, sess *session.Session, det *detector.Detector) *Handler {
	return &Handler{svc: svc, sess: sess, det: det}
}

// paramKey extracts the (module type, parameter id) natural key from
// the route.
func paramKey(r *http.Request) (models.ParamKey, error) {
	mt, err := models.ParseModuleType(chi.URLParam(r, "type"))
	if err != nil {
		return models.ParamKey{}, err
	}
	return models.ParamKey{ModuleType: mt, ParamID: chi.URLParam(r, "id")}, nil
}

// writeWorkflowError maps workflow sentinels onto HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrNoIdentity):
		writeJSON(w, http.StatusUnauthorized, errorBody("sign in required"))
	case errors.Is(err, apperr.ErrExpiredCredential):
		writeJSON(w, http.StatusUnauthorized, errorBody("credential expired, sign in again"))
	case errors.Is(err, apperr.ErrNotPrivileged), errors.Is(err, apperr.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorBody("permission denied"))
	case errors.Is(err, apperr.ErrTerminalState):
		writeJSON(w, http.StatusConflict, errorBody("contribution already finalized"))
	default:
		slog.Error("workflow call failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// GetParameter handles GET /parameters/{type}/{id}.
func (h *Handler) GetParameter(w http.ResponseWriter, r *http.Request) {
	key, err := paramKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.GetParameter(r.Context(), h.sess, key)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Submit handles POST /contributions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	mt, err := models.ParseModuleType(req.ModuleType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.ParamID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("param_id is required"))
		return
	}

	key := models.ParamKey{ModuleType: mt, ParamID: req.ParamID}
	c, err := h.svc.Submit(r.Context(), h.sess, key, req.Payload)
	if err != nil {
		if errors.Is(err, apperr.ErrNoChanges) {
			writeJSON(w, http.StatusOK, SubmitResponse{NoChanges: true})
			return
		}
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{Contribution: c})
}

// ListContributions handles GET /contributions.
func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListContributions(r.Context(), h.sess)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	if items == nil {
		items = []models.Contribution{}
	}
	writeJSON(w, http.StatusOK, ContributionListResponse{Contributions: items, Total: len(items)})
}

// ListPending handles GET /pending.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListPending(r.Context(), h.sess)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	if items == nil {
		items = []models.Contribution{}
	}
	writeJSON(w, http.StatusOK, ContributionListResponse{Contributions: items, Total: len(items)})
}

// Approve handles POST /pending/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Approve(r.Context(), h.sess, chi.URLParam(r, "id"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Reject handles POST /pending/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	c, err := h.svc.Reject(r.Context(), h.sess, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DetectorStatus handles GET /detector.
func (h *Handler) DetectorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.det.Status())
}

// DetectorEnable handles POST /detector/enable.
func (h *Handler) DetectorEnable(w http.ResponseWriter, _ *http.Request) {
	h.det.Enable()
	writeJSON(w, http.StatusOK, h.det.Status())
}

// DetectorDisable handles POST /detector/disable.
func (h *Handler) DetectorDisable(w http.ResponseWriter, _ *http.Request) {
	h.det.Disable()
	writeJSON(w, http.StatusOK, h.det.Status())
}

// SignOut handles POST /session/signout.
func (h *Handler) SignOut(w http.ResponseWriter, _ *http.Request) {
	h.sess.SignOut()
	w.WriteHeader(http.StatusNoContent)
}
