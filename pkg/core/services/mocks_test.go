package services

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// mockStore implements every store interface the page controllers use
type mockStore struct {
	mu sync.Mutex

	activities  []model.Activity
	assignments []model.AssignmentWithActivity
	profile     *model.Profile

	listActivitiesErr   error
	listAssignmentsErr  error
	insertErr           error
	updateStatusErr     error
	getProfileErr       error
	updateProfileErr    error
	insertActivitiesErr error

	// when set, InsertAssignment and UpdateAssignmentStatus block until it is closed
	gate chan struct{}

	inserted             []string
	statusUpdates        map[string]model.AssignmentStatus
	updatedProfiles      []model.ProfileAttributes
	insertedActivities   []model.Activity
	listAssignmentsCalls int
}

func (m *mockStore) ListOpenActivities(ctx context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listActivitiesErr != nil {
		return nil, m.listActivitiesErr
	}
	var out []model.Activity
	for _, a := range m.activities {
		if a.Status == model.ActivityOpen {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listAssignmentsCalls++
	if m.listAssignmentsErr != nil {
		return nil, m.listAssignmentsErr
	}
	var out []model.AssignmentWithActivity
	for _, a := range m.assignments {
		if a.UserID != ident.UserID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockStore) InsertAssignment(ctx context.Context, ident model.Identity, activityID string) (*model.Assignment, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, activityID)
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	return &model.Assignment{ID: "asg-new", UserID: ident.UserID, ActivityID: activityID, Status: model.AssignmentActive}, nil
}

func (m *mockStore) UpdateAssignmentStatus(ctx context.Context, ident model.Identity, assignmentID string, status model.AssignmentStatus) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusUpdates == nil {
		m.statusUpdates = make(map[string]model.AssignmentStatus)
	}
	m.statusUpdates[assignmentID] = status
	return m.updateStatusErr
}

func (m *mockStore) GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getProfileErr != nil {
		return nil, m.getProfileErr
	}
	if m.profile == nil {
		return nil, db.ErrNotFound
	}
	p := *m.profile
	return &p, nil
}

func (m *mockStore) UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedProfiles = append(m.updatedProfiles, attrs)
	return m.updateProfileErr
}

func (m *mockStore) ListActivities(ctx context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listActivitiesErr != nil {
		return nil, m.listActivitiesErr
	}
	return slices.Clone(m.activities), nil
}

func (m *mockStore) InsertActivities(ctx context.Context, activities []model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertActivitiesErr != nil {
		return m.insertActivitiesErr
	}
	m.insertedActivities = append(m.insertedActivities, activities...)
	return nil
}

func (m *mockStore) wait() {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (m *mockStore) insertedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inserted...)
}

// mockAuth implements Authenticator
type mockAuth struct {
	identity *model.Identity
	err      error

	signUps []model.ProfileAttributes
	emails  []string
}

func (m *mockAuth) SignUp(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error) {
	m.signUps = append(m.signUps, seed)
	m.emails = append(m.emails, email)
	if m.err != nil {
		return nil, m.err
	}
	return m.identity, nil
}

func (m *mockAuth) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	m.emails = append(m.emails, email)
	if m.err != nil {
		return nil, m.err
	}
	return m.identity, nil
}

type sentMail struct {
	to, subject, body string
}

// mockMailer implements Mailer
type mockMailer struct {
	sent chan sentMail
	err  error
}

func newMockMailer() *mockMailer {
	return &mockMailer{sent: make(chan sentMail, 10)}
}

func (m *mockMailer) SendEmail(to, subject, body string) error {
	m.sent <- sentMail{to: to, subject: subject, body: body}
	return m.err
}

func (m *mockMailer) next(t *testing.T) sentMail {
	t.Helper()
	select {
	case mail := <-m.sent:
		return mail
	case <-time.After(2 * time.Second):
		require.FailNow(t, "expected an email to be sent")
		return sentMail{}
	}
}

var volunteer = model.Identity{
	UserID:      "user-1",
	Email:       "hina@example.com",
	AccessToken: "access-1",
	ExpiresAt:   time.Now().Add(time.Hour),
}

func openActivity(id string, capacity, current int) model.Activity {
	return model.Activity{
		ID:                id,
		Title:             "Activity " + id,
		StartDate:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:            model.ActivityOpen,
		MaxVolunteers:     capacity,
		CurrentVolunteers: current,
	}
}

func lastNote(t *testing.T, q *notify.Queue) notify.Notification {
	t.Helper()
	notes := q.Drain()
	require.NotEmpty(t, notes, "expected a notification")
	return notes[len(notes)-1]
}
