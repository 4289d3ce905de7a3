package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunehub/paramlens/internal/detector"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/workflow"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *workflow.Service, sess *session.Session, det *detector.Detector, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sess, det)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Parameter reads.
	r.Get("/parameters/{type}/{id}", h.GetParameter)

	// Contribution submission and history.
	r.Post("/contributions", h.Submit)
	r.Get("/contributions", h.ListContributions)

	// Admin review surface.
	r.Get("/pending", h.ListPending)
	r.Post("/pending/{id}/approve", h.Approve)
	r.Post("/pending/{id}/reject", h.Reject)

	// Detection control.
	r.Get("/detector", h.DetectorStatus)
	r.Post("/detector/enable", h.DetectorEnable)
	r.Post("/detector/disable", h.DetectorDisable)

	// Session.
	r.Post("/session/signout", h.SignOut)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
