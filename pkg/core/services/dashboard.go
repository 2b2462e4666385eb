package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// Stat is one tile of the dashboard summary
type Stat struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// DashboardView is everything the dashboard renders
type DashboardView struct {
	Greeting    string                         `json:"greeting"`
	SkillBadges []string                       `json:"skill_badges"`
	Stats       []Stat                         `json:"stats"`
	Current     []model.AssignmentWithActivity `json:"current"`
}

// DashboardStore defines the backend operations the dashboard needs
type DashboardStore interface {
	GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error)
	ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error)
}

const maxSkillBadges = 3

// LoadDashboard fetches the profile and active assignments of the identity.
// Completed, hours and impact are not tracked anywhere and always show zero.
func LoadDashboard(ctx context.Context, store DashboardStore, ident model.Identity, logger *zap.Logger) (*DashboardView, error) {
	logger.Debug("Loading dashboard", zap.String("user_id", ident.UserID))

	profile, err := store.GetProfile(ctx, ident)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	active := model.AssignmentActive
	assignments, err := store.ListAssignments(ctx, ident, &active)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active assignments: %w", err)
	}

	view := &DashboardView{
		Greeting: "Volunteer",
		Current:  assignments,
		Stats: []Stat{
			{Label: "Active Assignments", Value: len(assignments)},
			{Label: "Completed", Value: 0},
			{Label: "Hours Volunteered", Value: 0},
			{Label: "Impact Score", Value: 0},
		},
	}
	if profile != nil {
		if profile.FullName != "" {
			view.Greeting = profile.FullName
		}
		view.SkillBadges = profile.Skills[:min(len(profile.Skills), maxSkillBadges)]
	}

	logger.Debug("Dashboard loaded", zap.Int("active_assignments", len(assignments)))
	return view, nil
}
