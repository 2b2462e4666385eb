package db

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

const defaultTokenTTL = time.Hour

var _ Backend = (*Memory)(nil)

type memoryAccount struct {
	userID       string
	email        string
	passwordHash []byte
}

type memoryToken struct {
	userID    string
	expiresAt time.Time
}

// Memory is an in-process Backend used for local development and tests.
// All collections live behind one mutex.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	tokenTTL time.Duration

	accounts      map[string]*memoryAccount // by lower-cased e-mail
	accessTokens  map[string]memoryToken
	refreshTokens map[string]string // refresh token -> user id
	profiles      map[string]model.Profile
	activities    map[string]model.Activity
	assignments   []model.Assignment
}

// NewMemory creates an empty in-memory backend. A zero tokenTTL uses one hour.
func NewMemory(tokenTTL time.Duration) *Memory {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Memory{
		now:           time.Now,
		tokenTTL:      tokenTTL,
		accounts:      make(map[string]*memoryAccount),
		accessTokens:  make(map[string]memoryToken),
		refreshTokens: make(map[string]string),
		profiles:      make(map[string]model.Profile),
		activities:    make(map[string]model.Activity),
	}
}

// Close is a no-op
func (m *Memory) Close() {}

// issue creates a fresh token pair for an account; callers hold mu
func (m *Memory) issue(acc *memoryAccount) *model.Identity {
	access := uuid.NewString()
	refresh := uuid.NewString()
	expiresAt := m.now().Add(m.tokenTTL)

	m.accessTokens[access] = memoryToken{userID: acc.userID, expiresAt: expiresAt}
	m.refreshTokens[refresh] = acc.userID

	return &model.Identity{
		UserID:       acc.userID,
		Email:        acc.email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
}

// userFor validates the identity's access token; callers hold mu
func (m *Memory) userFor(ident model.Identity) (string, error) {
	tok, ok := m.accessTokens[ident.AccessToken]
	if !ok || tok.userID != ident.UserID || !m.now().Before(tok.expiresAt) {
		return "", ErrUnauthenticated
	}
	return tok.userID, nil
}

func (m *Memory) accountByID(userID string) *memoryAccount {
	for _, acc := range m.accounts {
		if acc.userID == userID {
			return acc
		}
	}
	return nil
}

func (m *Memory) CreateAccount(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := m.accounts[key]; exists {
		return nil, ErrEmailTaken
	}

	acc := &memoryAccount{userID: uuid.NewString(), email: email, passwordHash: hash}
	m.accounts[key] = acc

	profile := model.Profile{ID: uuid.NewString(), UserID: acc.userID, Email: email}
	applyAttributes(&profile, seed)
	m.profiles[acc.userID] = profile

	return m.issue(acc), nil
}

func (m *Memory) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[strings.ToLower(email)]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return m.issue(acc), nil
}

func (m *Memory) GetCurrent(ctx context.Context, accessToken string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.accessTokens[accessToken]
	if !ok || !m.now().Before(tok.expiresAt) {
		return nil, ErrUnauthenticated
	}
	acc := m.accountByID(tok.userID)
	if acc == nil {
		return nil, ErrUnauthenticated
	}
	return &model.Identity{
		UserID:      acc.userID,
		Email:       acc.email,
		AccessToken: accessToken,
		ExpiresAt:   tok.expiresAt,
	}, nil
}

func (m *Memory) Refresh(ctx context.Context, refreshToken string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.refreshTokens[refreshToken]
	if !ok {
		return nil, ErrUnauthenticated
	}
	acc := m.accountByID(userID)
	if acc == nil {
		return nil, ErrUnauthenticated
	}
	// refresh tokens are single use
	delete(m.refreshTokens, refreshToken)
	return m.issue(acc), nil
}

func (m *Memory) SignOut(ctx context.Context, ident model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accessTokens, ident.AccessToken)
	if ident.RefreshToken != "" {
		delete(m.refreshTokens, ident.RefreshToken)
	}
	return nil
}

func (m *Memory) GetProfile(ctx context.Context, ident model.Identity) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, err := m.userFor(ident)
	if err != nil {
		return nil, err
	}
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	profile.Skills = slices.Clone(profile.Skills)
	return &profile, nil
}

func (m *Memory) UpdateProfile(ctx context.Context, ident model.Identity, attrs model.ProfileAttributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, err := m.userFor(ident)
	if err != nil {
		return err
	}
	profile, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	applyAttributes(&profile, attrs)
	m.profiles[userID] = profile
	return nil
}

func applyAttributes(p *model.Profile, attrs model.ProfileAttributes) {
	p.FullName = attrs.FullName
	p.Phone = attrs.Phone
	p.City = deref(attrs.City)
	p.Availability = model.Availability(deref(attrs.Availability))
	p.Skills = slices.Clone(attrs.Skills)
	p.Bio = deref(attrs.Bio)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m *Memory) ListOpenActivities(ctx context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Activity
	for _, a := range m.activities {
		if a.Status == model.ActivityOpen {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) ListActivities(ctx context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Activity, 0, len(m.activities))
	for _, a := range m.activities {
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(activities []model.Activity) {
	slices.SortStableFunc(activities, func(a, b model.Activity) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func (m *Memory) InsertActivities(ctx context.Context, activities []model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range activities {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Status == "" {
			a.Status = model.ActivityOpen
		}
		m.activities[a.ID] = a
	}
	return nil
}

func (m *Memory) ListAssignments(ctx context.Context, ident model.Identity, status *model.AssignmentStatus) ([]model.AssignmentWithActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, err := m.userFor(ident)
	if err != nil {
		return nil, err
	}

	var out []model.AssignmentWithActivity
	for _, asg := range m.assignments {
		if asg.UserID != userID || (status != nil && asg.Status != *status) {
			continue
		}
		activity, ok := m.activities[asg.ActivityID]
		if !ok {
			continue
		}
		out = append(out, model.AssignmentWithActivity{Assignment: asg, Activity: activity})
	}
	slices.SortStableFunc(out, func(a, b model.AssignmentWithActivity) int {
		return b.AssignedAt.Compare(a.AssignedAt)
	})
	return out, nil
}

func (m *Memory) InsertAssignment(ctx context.Context, ident model.Identity, activityID string) (*model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, err := m.userFor(ident)
	if err != nil {
		return nil, err
	}
	activity, ok := m.activities[activityID]
	if !ok {
		return nil, ErrActivityNotFound
	}
	for _, asg := range m.assignments {
		if asg.UserID == userID && asg.ActivityID == activityID && asg.Status == model.AssignmentActive {
			return nil, ErrDuplicateAssignment
		}
	}

	asg := model.Assignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		ActivityID: activityID,
		Status:     model.AssignmentActive,
		AssignedAt: m.now().UTC(),
	}
	m.assignments = append(m.assignments, asg)

	activity.CurrentVolunteers++
	m.activities[activityID] = activity

	return &asg, nil
}

func (m *Memory) UpdateAssignmentStatus(ctx context.Context, ident model.Identity, assignmentID string, status model.AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, err := m.userFor(ident)
	if err != nil {
		return err
	}

	for i, asg := range m.assignments {
		if asg.ID != assignmentID || asg.UserID != userID {
			continue
		}
		if asg.Status == model.AssignmentActive && status != model.AssignmentActive {
			if activity, ok := m.activities[asg.ActivityID]; ok && activity.CurrentVolunteers > 0 {
				activity.CurrentVolunteers--
				m.activities[asg.ActivityID] = activity
			}
		}
		m.assignments[i].Status = status
		return nil
	}
	return ErrNotFound
}
