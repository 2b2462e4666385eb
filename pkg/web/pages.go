package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/core/viewstate"
)

// assignmentRow is one assignment as the My Activities page shows it
type assignmentRow struct {
	model.AssignmentWithActivity
	ImageURL   string `json:"image_url"`
	Cancelling bool   `json:"cancelling"`
}

type activitiesView struct {
	Tab       string          `json:"-"`
	Active    []assignmentRow `json:"active"`
	Completed []assignmentRow `json:"completed"`
	Cancelled []assignmentRow `json:"cancelled"`
}

// Shown is the list of the selected tab
func (v activitiesView) Shown() []assignmentRow {
	switch v.Tab {
	case "completed":
		return v.Completed
	case "cancelled":
		return v.Cancelled
	default:
		return v.Active
	}
}

func (v activitiesView) EmptyText() string {
	switch v.Tab {
	case "completed":
		return "No completed activities yet"
	case "cancelled":
		return "No cancelled activities"
	default:
		return "No active activities"
	}
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "landing.html", "Al-Khidmat Volunteer Portal", services.Landing())
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if identityFrom(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register.html", "Register", newFormData(validation.RegistrationInput{}, nil))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Form error: "+err.Error(), http.StatusBadRequest)
		return
	}
	ws := workspaceFrom(r)
	in := registrationFromForm(r)

	result, err := services.Register(r.Context(), ws.session, s.opts.Backend, ws.notes, s.opts.Mailer, in, ws.logger)
	if err != nil {
		var errs validation.Errors
		status := http.StatusOK
		if result != nil {
			errs = result.Errors
		}
		if errors.Is(err, services.ErrValidation) {
			status = http.StatusUnprocessableEntity
		}
		in.Password, in.ConfirmPassword = "", ""
		s.render(w, r, status, "register.html", "Register", newFormData(in, errs))
		return
	}

	http.Redirect(w, r, result.Redirect, http.StatusSeeOther)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if identityFrom(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", "Sign In", newFormData(validation.LoginInput{}, nil))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Form error: "+err.Error(), http.StatusBadRequest)
		return
	}
	ws := workspaceFrom(r)
	in := validation.LoginInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	result, err := services.Login(r.Context(), ws.session, ws.notes, in, ws.logger)
	if err != nil {
		var errs validation.Errors
		status := http.StatusOK
		if result != nil {
			errs = result.Errors
		}
		if errors.Is(err, services.ErrValidation) {
			status = http.StatusUnprocessableEntity
		}
		in.Password = ""
		s.render(w, r, status, "login.html", "Sign In", newFormData(in, errs))
		return
	}

	http.Redirect(w, r, result.Redirect, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	// the local session is gone even when the provider call fails
	_ = ws.session.SignOut(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	ident := identityFrom(r)

	view, err := services.LoadDashboard(r.Context(), s.opts.Backend, *ident, ws.logger)
	if err != nil {
		ws.loadFailed(err)
		view = &services.DashboardView{Greeting: "Volunteer"}
	}

	s.render(w, r, http.StatusOK, "dashboard.html", "Dashboard", view)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	ident := identityFrom(r)

	if err := ws.activities.Mount(r.Context(), *ident); err != nil {
		ws.loadFailed(err)
	}

	tab := r.URL.Query().Get("tab")
	switch tab {
	case "completed", "cancelled":
	default:
		tab = "active"
	}

	s.render(w, r, http.StatusOK, "activities.html", "My Activities", activitiesPage(ws.activities, tab))
}

func activitiesPage(c *services.MyActivities, tab string) activitiesView {
	p := c.Partition()
	rows := func(items []model.AssignmentWithActivity) []assignmentRow {
		out := make([]assignmentRow, 0, len(items))
		for i, a := range items {
			out = append(out, assignmentRow{
				AssignmentWithActivity: a,
				ImageURL:               model.ImageFor(a.Activity, i),
				Cancelling:             c.Cancelling(a.ID),
			})
		}
		return out
	}
	return activitiesView{
		Tab:       tab,
		Active:    rows(p.Active),
		Completed: rows(p.Completed),
		Cancelled: rows(p.Cancelled),
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	ident := identityFrom(r)

	if _, err := s.cancel(r.Context(), ws, *ident, chi.URLParam(r, "assignmentID")); err != nil {
		ws.logger.Debug("Cancel refused", zap.Error(err))
	}
	http.Redirect(w, r, "/activities", http.StatusSeeOther)
}

// cancel submits the cancellation and waits briefly for it to settle
func (s *Server) cancel(ctx context.Context, ws *workspace, ident model.Identity, assignmentID string) (viewstate.Outcome, error) {
	if !ws.activities.Loaded() {
		if err := ws.activities.Mount(ctx, ident); err != nil {
			ws.loadFailed(err)
			return viewstate.RolledBack, err
		}
	}

	handle, err := ws.activities.Cancel(ctx, ident, assignmentID)
	if err != nil {
		return viewstate.RolledBack, err
	}
	return s.awaitSettle(ctx, handle)
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	if err := ws.opportunities.Mount(r.Context(), identityFrom(r)); err != nil {
		ws.loadFailed(err)
	}

	s.render(w, r, http.StatusOK, "opportunities.html", "Volunteer Opportunities", ws.opportunities.Cards())
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	if _, err := s.join(r.Context(), ws, identityFrom(r), chi.URLParam(r, "activityID")); err != nil {
		ws.logger.Debug("Join refused", zap.Error(err))
	}
	http.Redirect(w, r, "/opportunities", http.StatusSeeOther)
}

// join submits the join and waits briefly for it to settle
func (s *Server) join(ctx context.Context, ws *workspace, ident *model.Identity, activityID string) (viewstate.Outcome, error) {
	if ident != nil && !ws.opportunities.Loaded() {
		if err := ws.opportunities.Mount(ctx, ident); err != nil {
			ws.loadFailed(err)
			return viewstate.RolledBack, err
		}
	}

	handle, err := ws.opportunities.Join(ctx, ident, activityID)
	if err != nil {
		return viewstate.RolledBack, err
	}
	return s.awaitSettle(ctx, handle)
}

// awaitSettle waits up to MutationWait. A slower write finishes in the
// background and its notification shows on a later page.
func (s *Server) awaitSettle(ctx context.Context, handle *viewstate.Handle) (viewstate.Outcome, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.MutationWait)
	defer cancel()

	outcome, err := handle.Wait(waitCtx)
	if outcome == viewstate.Pending {
		return outcome, nil
	}
	return outcome, err
}

func (s *Server) handleProfileForm(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	ident := identityFrom(r)

	form, err := services.LoadProfile(r.Context(), s.opts.Backend, *ident, ws.logger)
	if err != nil {
		ws.loadFailed(err)
		form = &services.ProfileForm{Email: ident.Email}
	}

	data := newFormData(form.ProfileInput, nil)
	data.ReadOnlyEmail = form.Email
	s.render(w, r, http.StatusOK, "profile.html", "My Profile", data)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Form error: "+err.Error(), http.StatusBadRequest)
		return
	}
	ws := workspaceFrom(r)
	ident := identityFrom(r)
	in := profileFromForm(r)

	errs, err := services.SaveProfile(r.Context(), s.opts.Backend, ws.notes, *ident, in, ws.logger)
	if err != nil {
		status := http.StatusOK
		if errors.Is(err, services.ErrValidation) {
			status = http.StatusUnprocessableEntity
		}
		data := newFormData(in, errs)
		data.ReadOnlyEmail = ident.Email
		s.render(w, r, status, "profile.html", "My Profile", data)
		return
	}

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// loadFailed surfaces a failed page load as a generic notification
func (ws *workspace) loadFailed(err error) {
	ws.logger.Warn("Failed to load page data", zap.Error(err))
	ws.notes.Push(notify.Failure("Error", services.GenericFailure))
}

func registrationFromForm(r *http.Request) validation.RegistrationInput {
	return validation.RegistrationInput{
		FullName:        r.PostFormValue("fullName"),
		Email:           r.PostFormValue("email"),
		Phone:           r.PostFormValue("phone"),
		City:            r.PostFormValue("city"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		Availability:    r.PostFormValue("availability"),
		Skills:          formList(r, "skills"),
		Bio:             r.PostFormValue("bio"),
		AgreeToTerms:    r.PostFormValue("agreeToTerms") != "",
	}
}

func profileFromForm(r *http.Request) validation.ProfileInput {
	return validation.ProfileInput{
		FullName:     r.PostFormValue("fullName"),
		Phone:        r.PostFormValue("phone"),
		City:         r.PostFormValue("city"),
		Availability: r.PostFormValue("availability"),
		Skills:       formList(r, "skills"),
		Bio:          r.PostFormValue("bio"),
	}
}

func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.PostForm[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
