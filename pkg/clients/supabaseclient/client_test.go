package supabaseclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	apikey string
	accept string
	prefer string
	body   string
}

// fakeSupabase records requests and answers from a handler map keyed by "METHOD /path"
type fakeSupabase struct {
	t        *testing.T
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

func newFakeSupabase(t *testing.T) (*fakeSupabase, *Client) {
	t.Helper()
	f := &fakeSupabase{t: t, handlers: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.requests = append(f.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			apikey: r.Header.Get("apikey"),
			accept: r.Header.Get("Accept"),
			prefer: r.Header.Get("Prefer"),
			body:   string(body),
		})
		h, ok := f.handlers[r.Method+" "+r.URL.Path]
		if !ok {
			http.Error(w, "unexpected request", http.StatusTeapot)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{URL: srv.URL, AnonKey: "anon-key", ServiceKey: "service-key"}, zap.NewNop())
	require.NoError(t, err)
	return f, client
}

func (f *fakeSupabase) on(method, path string, status int, body string) {
	f.handlers[method+" "+path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeSupabase) last() recordedRequest {
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

var member = model.Identity{UserID: "u-1", Email: "zara@example.com", AccessToken: "user-token"}

func TestNewClient_RequiresURLAndKey(t *testing.T) {
	_, err := NewClient(Config{URL: "https://x.supabase.co"}, nil)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodPost, "/auth/v1/token", http.StatusOK,
		`{"access_token":"at","refresh_token":"rt","expires_in":3600,"expires_at":1900000000,"user":{"id":"u-1","email":"zara@example.com"}}`)

	ident, err := c.Authenticate(context.Background(), "zara@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u-1", ident.UserID)
	assert.Equal(t, "rt", ident.RefreshToken)
	assert.Equal(t, time.Unix(1900000000, 0), ident.ExpiresAt)

	req := f.last()
	assert.Equal(t, "grant_type=password", req.query)
	assert.Equal(t, "Bearer anon-key", req.auth)
	assert.Equal(t, "anon-key", req.apikey)
	assert.JSONEq(t, `{"email":"zara@example.com","password":"secret123"}`, req.body)
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodPost, "/auth/v1/token", http.StatusBadRequest,
		`{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)

	_, err := c.Authenticate(context.Background(), "zara@example.com", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrInvalidCredentials)

	var remote *db.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "Invalid login credentials", remote.Message)
	assert.Equal(t, "invalid_credentials", remote.Code)
}

func TestCreateAccount(t *testing.T) {
	t.Run("session issued", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.on(http.MethodPost, "/auth/v1/signup", http.StatusOK,
			`{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u-2","email":"new@example.com"}}`)

		city := "Karachi"
		ident, err := c.CreateAccount(context.Background(), "new@example.com", "secret123", model.ProfileAttributes{
			FullName: "New Person", Phone: "0300 1234567", City: &city, Skills: []string{"Education"},
		})
		require.NoError(t, err)
		require.NotNil(t, ident)
		assert.Equal(t, "u-2", ident.UserID)

		var sent map[string]any
		require.NoError(t, json.Unmarshal([]byte(f.last().body), &sent))
		data := sent["data"].(map[string]any)
		assert.Equal(t, "New Person", data["full_name"])
		assert.Equal(t, "Karachi", data["city"])
		assert.Nil(t, data["bio"])
	})

	t.Run("confirmation required", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.on(http.MethodPost, "/auth/v1/signup", http.StatusOK, `{"id":"u-3","email":"new@example.com"}`)

		ident, err := c.CreateAccount(context.Background(), "new@example.com", "secret123", model.ProfileAttributes{})
		require.NoError(t, err)
		assert.Nil(t, ident)
	})

	t.Run("already registered", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.on(http.MethodPost, "/auth/v1/signup", http.StatusUnprocessableEntity,
			`{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`)

		_, err := c.CreateAccount(context.Background(), "new@example.com", "secret123", model.ProfileAttributes{})
		assert.ErrorIs(t, err, db.ErrEmailTaken)
	})
}

func TestGetCurrent(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodGet, "/auth/v1/user", http.StatusOK, `{"id":"u-1","email":"zara@example.com"}`)

	ident, err := c.GetCurrent(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "u-1", ident.UserID)
	assert.Equal(t, "Bearer user-token", f.last().auth)

	f.on(http.MethodGet, "/auth/v1/user", http.StatusUnauthorized, `{"code":401,"error_code":"bad_jwt","msg":"invalid JWT"}`)
	_, err = c.GetCurrent(context.Background(), "expired")
	assert.ErrorIs(t, err, db.ErrUnauthenticated)

	_, err = c.GetCurrent(context.Background(), "")
	assert.ErrorIs(t, err, db.ErrUnauthenticated)
}

func TestGetProfile(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodGet, "/rest/v1/profiles", http.StatusOK,
		`{"id":"p-1","user_id":"u-1","full_name":"Zara Ali","phone":"0300 1234567","city":null,"availability":"weekdays","skills":["Healthcare"],"bio":null}`)

	profile, err := c.GetProfile(context.Background(), member)
	require.NoError(t, err)
	assert.Equal(t, "Zara Ali", profile.FullName)
	assert.Equal(t, model.AvailabilityWeekdays, profile.Availability)
	assert.Empty(t, profile.City)

	req := f.last()
	assert.Equal(t, "application/vnd.pgrst.object+json", req.accept)
	assert.Contains(t, req.query, "user_id=eq.u-1")

	f.on(http.MethodGet, "/rest/v1/profiles", http.StatusNotAcceptable,
		`{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`)
	_, err = c.GetProfile(context.Background(), member)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpdateProfile_SendsNulls(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodPatch, "/rest/v1/profiles", http.StatusNoContent, "")

	err := c.UpdateProfile(context.Background(), member, model.ProfileAttributes{FullName: "Zara", Phone: "0300 1234567"})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, "user_id=eq.u-1", req.query)
	assert.Equal(t, "return=minimal", req.prefer)
	assert.JSONEq(t, `{"full_name":"Zara","phone":"0300 1234567","city":null,"availability":null,"skills":null,"bio":null}`, req.body)
}

func TestListOpenActivities(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodGet, "/rest/v1/volunteer_activities", http.StatusOK, `[
		{"id":"a-1","title":"Camp","description":"d","location":"Lahore","start_date":"2026-03-01T09:00:00+00:00","end_date":null,"category":"Healthcare","status":"open","max_volunteers":10,"current_volunteers":3,"image_url":null}
	]`)

	activities, err := c.ListOpenActivities(context.Background())
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, 7, activities[0].SpotsLeft())
	assert.Nil(t, activities[0].EndDate)

	req := f.last()
	assert.Contains(t, req.query, "status=eq.open")
	assert.Contains(t, req.query, "order=start_date.asc")
	assert.Equal(t, "Bearer anon-key", req.auth)
}

func TestListAssignments(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodGet, "/rest/v1/volunteer_assignments", http.StatusOK, `[
		{"id":"as-1","status":"active","assigned_at":"2026-02-01T10:00:00Z","activity_id":"a-1","user_id":"u-1","volunteer_activities":{"id":"a-1","title":"Camp","start_date":"2026-03-01T09:00:00Z","status":"open"}},
		{"id":"as-2","status":"active","assigned_at":"2026-01-01T10:00:00Z","activity_id":"a-9","user_id":"u-1","volunteer_activities":null}
	]`)

	active := model.AssignmentActive
	rows, err := c.ListAssignments(context.Background(), member, &active)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Camp", rows[0].Activity.Title)
	assert.Equal(t, model.AssignmentActive, rows[0].Status)

	req := f.last()
	assert.Contains(t, req.query, "status=eq.active")
	assert.Contains(t, req.query, "order=assigned_at.desc")
	assert.Equal(t, "Bearer user-token", req.auth)
}

func TestInsertAssignment(t *testing.T) {
	t.Run("inserts when none active", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.handlers["GET /rest/v1/volunteer_assignments"] = func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[]`)
		}
		f.on(http.MethodPost, "/rest/v1/volunteer_assignments", http.StatusCreated,
			`[{"id":"as-3","user_id":"u-1","activity_id":"a-1","status":"active","assigned_at":"2026-02-01T10:00:00Z"}]`)

		asg, err := c.InsertAssignment(context.Background(), member, "a-1")
		require.NoError(t, err)
		assert.Equal(t, "as-3", asg.ID)
		assert.JSONEq(t, `{"user_id":"u-1","activity_id":"a-1","status":"active"}`, f.last().body)
	})

	t.Run("existing active assignment", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.on(http.MethodGet, "/rest/v1/volunteer_assignments", http.StatusOK, `[{"id":"as-1"}]`)

		_, err := c.InsertAssignment(context.Background(), member, "a-1")
		assert.ErrorIs(t, err, db.ErrDuplicateAssignment)
		assert.Len(t, f.requests, 1, "no insert is issued")
	})

	t.Run("unique violation", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.on(http.MethodGet, "/rest/v1/volunteer_assignments", http.StatusOK, `[]`)
		f.on(http.MethodPost, "/rest/v1/volunteer_assignments", http.StatusConflict,
			`{"code":"23505","details":null,"hint":null,"message":"duplicate key value violates unique constraint \"one_active_assignment\""}`)

		_, err := c.InsertAssignment(context.Background(), member, "a-1")
		assert.ErrorIs(t, err, db.ErrDuplicateAssignment)
	})

	t.Run("unknown activity", func(t *testing.T) {
		f, c := newFakeSupabase(t)
		f.on(http.MethodGet, "/rest/v1/volunteer_assignments", http.StatusOK, `[]`)
		f.on(http.MethodPost, "/rest/v1/volunteer_assignments", http.StatusConflict,
			`{"code":"23503","message":"insert or update on table \"volunteer_assignments\" violates foreign key constraint"}`)

		_, err := c.InsertAssignment(context.Background(), member, "missing")
		assert.ErrorIs(t, err, db.ErrActivityNotFound)
	})
}

func TestUpdateAssignmentStatus(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodPatch, "/rest/v1/volunteer_assignments", http.StatusOK, `[{"id":"as-1"}]`)

	require.NoError(t, c.UpdateAssignmentStatus(context.Background(), member, "as-1", model.AssignmentCancelled))
	req := f.last()
	assert.Contains(t, req.query, "id=eq.as-1")
	assert.JSONEq(t, `{"status":"cancelled"}`, req.body)

	f.on(http.MethodPatch, "/rest/v1/volunteer_assignments", http.StatusOK, `[]`)
	err := c.UpdateAssignmentStatus(context.Background(), member, "as-x", model.AssignmentCancelled)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestInsertActivities_UsesServiceKey(t *testing.T) {
	f, c := newFakeSupabase(t)
	f.on(http.MethodPost, "/rest/v1/volunteer_activities", http.StatusCreated, "")

	err := c.InsertActivities(context.Background(), []model.Activity{
		{Title: "Food Drive", StartDate: time.Date(2026, 4, 4, 9, 0, 0, 0, time.UTC), MaxVolunteers: 20},
	})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, "Bearer service-key", req.auth)
	assert.Equal(t, "service-key", req.apikey)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "open", rows[0]["status"])
	assert.NotContains(t, rows[0], "id")

	noService, err := NewClient(Config{URL: "http://localhost", AnonKey: "anon"}, nil)
	require.NoError(t, err)
	assert.Error(t, noService.InsertActivities(context.Background(), []model.Activity{{Title: "x"}}))
}

func TestParseError_FallsBackToBody(t *testing.T) {
	err := parseError(http.StatusBadGateway, []byte("upstream unavailable"))
	var remote *db.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "upstream unavailable", remote.Message)
	assert.Nil(t, remote.Kind)
}
