package db

import (
	"context"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// AccountStore is the identity provider
type AccountStore interface {
	// CreateAccount registers a new identity and seeds its profile. The returned
	// identity is nil when the backend requires e-mail confirmation before a
	// session is issued.
	CreateAccount(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error)
	Authenticate(ctx context.Context, email, password string) (*model.Identity, error)
	// GetCurrent resolves an access token to its identity, or ErrUnauthenticated
	GetCurrent(ctx context.Context, accessToken string) (*model.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Identity, error)
	SignOut(ctx context.Context, ident model.Identity) error
}

// ProfileStore reads and writes the profile owned by an identity
type ProfileStore interface {
	GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error)
	UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error
}

// ActivityStore lists operator-defined activities
type ActivityStore interface {
	// ListOpenActivities returns activities with status open, ascending by start date
	ListOpenActivities(ctx context.Context) ([]model.Activity, error)
	ListActivities(ctx context.Context) ([]model.Activity, error)
}

// AssignmentStore manages the join relationship between identities and activities
type AssignmentStore interface {
	// ListAssignments returns the identity's assignments joined with their
	// activities, newest first. A nil status matches every status.
	ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error)
	// InsertAssignment creates an active assignment. It fails with
	// ErrDuplicateAssignment when one is already active for the pair and with
	// ErrActivityNotFound for an unknown activity.
	InsertAssignment(ctx context.Context, ident model.Identity, activityID string) (*model.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, ident model.Identity, assignmentID string, status model.AssignmentStatus) error
}

// ActivityAdmin is the operator-side write path for activities
type ActivityAdmin interface {
	InsertActivities(ctx context.Context, activities []model.Activity) error
}

// Backend defines every collection operation the portal needs.
// The Supabase client, postgres.DB and Memory implement this interface.
type Backend interface {
	AccountStore
	ProfileStore
	ActivityStore
	AssignmentStore
	ActivityAdmin
	Close()
}
