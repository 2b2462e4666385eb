package supabaseclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

const (
	profilesTable    = "/rest/v1/profiles"
	activitiesTable  = "/rest/v1/volunteer_activities"
	assignmentsTable = "/rest/v1/volunteer_assignments"

	assignmentSelect = "id,status,assigned_at,activity_id,user_id,volunteer_activities(*)"
)

func eq(v string) string {
	return "eq." + v
}

func (c *Client) GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error) {
	var profile model.Profile
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    profilesTable,
		query:   url.Values{"select": {"*"}, "user_id": {eq(ident.UserID)}},
		bearer:  ident.AccessToken,
		headers: map[string]string{"Accept": "application/vnd.pgrst.object+json"},
	}, &profile)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error {
	err := c.do(ctx, request{
		method:  http.MethodPatch,
		path:    profilesTable,
		query:   url.Values{"user_id": {eq(ident.UserID)}},
		body:    attrs,
		bearer:  ident.AccessToken,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func (c *Client) ListOpenActivities(ctx context.Context) ([]model.Activity, error) {
	var activities []model.Activity
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   activitiesTable,
		query: url.Values{
			"select": {"*"},
			"status": {eq(string(model.ActivityOpen))},
			"order":  {"start_date.asc"},
		},
	}, &activities)
	if err != nil {
		return nil, fmt.Errorf("failed to list open activities: %w", err)
	}
	return activities, nil
}

func (c *Client) ListActivities(ctx context.Context) ([]model.Activity, error) {
	var activities []model.Activity
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   activitiesTable,
		query:  url.Values{"select": {"*"}, "order": {"start_date.asc"}},
	}, &activities)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}

// activityRow is the insert payload; an empty id is left to the database default
type activityRow struct {
	ID                string               `json:"id,omitempty"`
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Location          string               `json:"location"`
	StartDate         time.Time            `json:"start_date"`
	EndDate           *time.Time           `json:"end_date"`
	Category          string               `json:"category"`
	Status            model.ActivityStatus `json:"status"`
	MaxVolunteers     int                  `json:"max_volunteers"`
	CurrentVolunteers int                  `json:"current_volunteers"`
	ImageURL          *string              `json:"image_url"`
}

// InsertActivities writes activities with the service-role key
func (c *Client) InsertActivities(ctx context.Context, activities []model.Activity) error {
	if c.serviceKey == "" {
		return fmt.Errorf("a service key is required to insert activities")
	}
	if len(activities) == 0 {
		return nil
	}

	rows := make([]activityRow, 0, len(activities))
	for _, a := range activities {
		row := activityRow{
			ID:                a.ID,
			Title:             a.Title,
			Description:       a.Description,
			Location:          a.Location,
			StartDate:         a.StartDate,
			EndDate:           a.EndDate,
			Category:          a.Category,
			Status:            a.Status,
			MaxVolunteers:     a.MaxVolunteers,
			CurrentVolunteers: a.CurrentVolunteers,
		}
		if row.Status == "" {
			row.Status = model.ActivityOpen
		}
		if a.ImageURL != "" {
			img := a.ImageURL
			row.ImageURL = &img
		}
		rows = append(rows, row)
	}

	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    activitiesTable,
		body:    rows,
		service: true,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to insert activities: %w", err)
	}
	return nil
}

func (c *Client) ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error) {
	query := url.Values{
		"select":  {assignmentSelect},
		"user_id": {eq(ident.UserID)},
		"order":   {"assigned_at.desc"},
	}
	if status != nil {
		query.Set("status", eq(string(*status)))
	}

	var rows []model.AssignmentWithActivity
	err := c.do(ctx, request{method: http.MethodGet, path: assignmentsTable, query: query, bearer: ident.AccessToken}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	// rows whose activity is hidden by row-level security come back with a null join
	out := rows[:0]
	for _, r := range rows {
		if r.Activity.ID != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// InsertAssignment checks for an existing active assignment before inserting.
// A unique index on the server, when present, closes the remaining race and
// its violation maps to db.ErrDuplicateAssignment as well.
func (c *Client) InsertAssignment(ctx context.Context, ident model.Identity, activityID string) (*model.Assignment, error) {
	var existing []struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   assignmentsTable,
		query: url.Values{
			"select":      {"id"},
			"user_id":     {eq(ident.UserID)},
			"activity_id": {eq(activityID)},
			"status":      {eq(string(model.AssignmentActive))},
			"limit":       {"1"},
		},
		bearer: ident.AccessToken,
	}, &existing)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing assignments: %w", err)
	}
	if len(existing) > 0 {
		return nil, db.ErrDuplicateAssignment
	}

	var created []model.Assignment
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   assignmentsTable,
		body: map[string]string{
			"user_id":     ident.UserID,
			"activity_id": activityID,
			"status":      string(model.AssignmentActive),
		},
		bearer:  ident.AccessToken,
		headers: map[string]string{"Prefer": "return=representation"},
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to insert assignment: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("failed to insert assignment: no row returned")
	}
	return &created[0], nil
}

func (c *Client) UpdateAssignmentStatus(ctx context.Context, ident model.Identity, assignmentID string, status model.AssignmentStatus) error {
	var updated []struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   assignmentsTable,
		query: url.Values{
			"id":      {eq(assignmentID)},
			"user_id": {eq(ident.UserID)},
			"select":  {"id"},
		},
		body:    map[string]string{"status": string(status)},
		bearer:  ident.AccessToken,
		headers: map[string]string{"Prefer": "return=representation"},
	}, &updated)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if len(updated) == 0 {
		return db.ErrNotFound
	}
	return nil
}
