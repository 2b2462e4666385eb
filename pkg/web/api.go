package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/viewstate"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

type meResponse struct {
	SignedIn    bool   `json:"signed_in"`
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type mutationResponse struct {
	Status string `json:"status"`
}

// apiMe reports the session identity and hands out the CSRF token for later posts
func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-CSRF-Token", csrf.Token(r))

	me := meResponse{}
	if ident := identityFrom(r); ident != nil {
		me = meResponse{
			SignedIn:    true,
			UserID:      ident.UserID,
			Email:       ident.Email,
			DisplayName: ident.DisplayName(),
		}
	}
	writeJSON(w, http.StatusOK, successResponse(me))
}

func (s *Server) apiOpportunities(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	if err := ws.opportunities.Mount(r.Context(), identityFrom(r)); err != nil {
		ws.logger.Warn("Failed to load opportunities", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse(services.GenericFailure))
		return
	}
	writeJSON(w, http.StatusOK, successResponse(ws.opportunities.Cards()))
}

func (s *Server) apiJoin(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	ident := identityFrom(r)

	outcome, err := s.join(r.Context(), ws, ident, chi.URLParam(r, "activityID"))
	if ident == nil && errors.Is(err, db.ErrUnauthenticated) {
		writeJSON(w, http.StatusUnauthorized, errorResponse("Please login to join activities."))
		return
	}
	s.writeMutation(w, outcome, err, "")
}

func (s *Server) apiAssignments(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	if err := ws.activities.Mount(r.Context(), *identityFrom(r)); err != nil {
		ws.logger.Warn("Failed to load assignments", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse(services.GenericFailure))
		return
	}
	writeJSON(w, http.StatusOK, successResponse(activitiesPage(ws.activities, "")))
}

func (s *Server) apiCancel(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	outcome, err := s.cancel(r.Context(), ws, *identityFrom(r), chi.URLParam(r, "assignmentID"))
	s.writeMutation(w, outcome, err, "Failed to cancel activity.")
}

// apiNotifications drains the pending toasts, the same ones the next page would show
func (s *Server) apiNotifications(w http.ResponseWriter, r *http.Request) {
	notes := workspaceFrom(r).notes.Drain()
	if notes == nil {
		notes = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, successResponse(notes))
}

// writeMutation answers a join or cancel. A write still in flight when the
// wait ends is accepted; its result arrives through /notifications.
func (s *Server) writeMutation(w http.ResponseWriter, outcome viewstate.Outcome, err error, fallback string) {
	if err != nil {
		writeJSON(w, mutationStatus(err), errorResponse(services.DescribeError(err, fallback)))
		return
	}
	if outcome == viewstate.Pending {
		writeJSON(w, http.StatusAccepted, successResponse(mutationResponse{Status: "pending"}))
		return
	}
	writeJSON(w, http.StatusOK, successResponse(mutationResponse{Status: "committed"}))
}

func mutationStatus(err error) int {
	switch {
	case errors.Is(err, db.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, db.ErrActivityNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, viewstate.ErrMutationInFlight),
		errors.Is(err, db.ErrDuplicateAssignment),
		errors.Is(err, services.ErrActivityFull),
		errors.Is(err, services.ErrNotActive):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
