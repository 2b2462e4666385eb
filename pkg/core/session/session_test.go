package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// mockAccounts implements db.AccountStore
type mockAccounts struct {
	identity      *model.Identity
	createNil     bool
	authErr       error
	currentErr    error
	refreshErr    error
	signOutErr    error
	refreshCalls  int
	signOutCalls  int
	currentTokens []string
}

func (m *mockAccounts) CreateAccount(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error) {
	if m.authErr != nil {
		return nil, m.authErr
	}
	if m.createNil {
		return nil, nil
	}
	ident := *m.identity
	return &ident, nil
}

func (m *mockAccounts) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	if m.authErr != nil {
		return nil, m.authErr
	}
	ident := *m.identity
	return &ident, nil
}

func (m *mockAccounts) GetCurrent(ctx context.Context, accessToken string) (*model.Identity, error) {
	m.currentTokens = append(m.currentTokens, accessToken)
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	return &model.Identity{UserID: m.identity.UserID, Email: m.identity.Email, AccessToken: accessToken}, nil
}

func (m *mockAccounts) Refresh(ctx context.Context, refreshToken string) (*model.Identity, error) {
	m.refreshCalls++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &model.Identity{
		UserID:       m.identity.UserID,
		Email:        m.identity.Email,
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (m *mockAccounts) SignOut(ctx context.Context, ident model.Identity) error {
	m.signOutCalls++
	return m.signOutErr
}

func testIdentity() *model.Identity {
	return &model.Identity{
		UserID:       "user-1",
		Email:        "omar@example.com",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestSignInAndOut_NotifiesListeners(t *testing.T) {
	ctx := context.Background()
	accounts := &mockAccounts{identity: testIdentity()}
	store := NewMemoryStore()
	sc := New("sid-1", accounts, store, zap.NewNop())

	var transitions [][2]bool
	unsubscribe := sc.Subscribe(func(prev, next *model.Identity) {
		transitions = append(transitions, [2]bool{prev != nil, next != nil})
	})

	ident, err := sc.SignIn(ctx, "omar@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "user-1", ident.UserID)
	assert.Equal(t, "user-1", sc.Current().UserID)

	stored, err := store.Load(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "access-1", stored.AccessToken)

	require.NoError(t, sc.SignOut(ctx))
	assert.Nil(t, sc.Current())
	assert.Equal(t, 1, accounts.signOutCalls)

	stored, err = store.Load(ctx, "sid-1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	assert.Equal(t, [][2]bool{{false, true}, {true, false}}, transitions)

	unsubscribe()
	_, err = sc.SignIn(ctx, "omar@example.com", "secret123")
	require.NoError(t, err)
	assert.Len(t, transitions, 2, "unsubscribed listener must not run")
}

func TestSignIn_Failure(t *testing.T) {
	accounts := &mockAccounts{identity: testIdentity(), authErr: db.ErrInvalidCredentials}
	sc := New("sid", accounts, NewMemoryStore(), nil)

	_, err := sc.SignIn(context.Background(), "omar@example.com", "bad")
	assert.ErrorIs(t, err, db.ErrInvalidCredentials)
	assert.Nil(t, sc.Current())
}

func TestSignUp_AwaitingConfirmation(t *testing.T) {
	accounts := &mockAccounts{identity: testIdentity(), createNil: true}
	sc := New("sid", accounts, NewMemoryStore(), nil)

	ident, err := sc.SignUp(context.Background(), "omar@example.com", "secret123", model.ProfileAttributes{})
	require.NoError(t, err)
	assert.Nil(t, ident)
	assert.Nil(t, sc.Current())
}

func TestSignOut_RemoteFailureStillClearsLocally(t *testing.T) {
	ctx := context.Background()
	accounts := &mockAccounts{identity: testIdentity(), signOutErr: errors.New("offline")}
	sc := New("sid", accounts, NewMemoryStore(), nil)

	_, err := sc.SignIn(ctx, "omar@example.com", "secret123")
	require.NoError(t, err)

	err = sc.SignOut(ctx)
	assert.Error(t, err)
	assert.Nil(t, sc.Current())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored", func(t *testing.T) {
		sc := New("sid", &mockAccounts{identity: testIdentity()}, NewMemoryStore(), nil)
		ident, err := sc.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, ident)
	})

	t.Run("valid token keeps refresh token", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "sid", *testIdentity()))
		accounts := &mockAccounts{identity: testIdentity()}
		sc := New("sid", accounts, store, nil)

		ident, err := sc.Restore(ctx)
		require.NoError(t, err)
		require.NotNil(t, ident)
		assert.Equal(t, "refresh-1", ident.RefreshToken)
		assert.Equal(t, []string{"access-1"}, accounts.currentTokens)
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		store := NewMemoryStore()
		expired := testIdentity()
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, store.Save(ctx, "sid", *expired))
		accounts := &mockAccounts{identity: testIdentity()}
		sc := New("sid", accounts, store, nil)

		ident, err := sc.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-access", ident.AccessToken)
		assert.Equal(t, 1, accounts.refreshCalls)

		stored, _ := store.Load(ctx, "sid")
		assert.Equal(t, "refreshed-access", stored.AccessToken)
	})

	t.Run("rejected token signs out locally", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "sid", *testIdentity()))
		accounts := &mockAccounts{identity: testIdentity(), currentErr: db.ErrUnauthenticated}
		sc := New("sid", accounts, store, nil)

		ident, err := sc.Restore(ctx)
		require.NoError(t, err)
		assert.Nil(t, ident)
		stored, _ := store.Load(ctx, "sid")
		assert.Nil(t, stored)
	})

	t.Run("network failure keeps stored session", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "sid", *testIdentity()))
		accounts := &mockAccounts{identity: testIdentity(), currentErr: errors.New("timeout")}
		sc := New("sid", accounts, store, nil)

		_, err := sc.Restore(ctx)
		assert.Error(t, err)
		stored, _ := store.Load(ctx, "sid")
		assert.NotNil(t, stored)
	})
}

func TestResolve_RefreshesExpiredIdentity(t *testing.T) {
	ctx := context.Background()
	accounts := &mockAccounts{identity: testIdentity()}
	sc := New("sid", accounts, NewMemoryStore(), nil)

	_, err := sc.SignIn(ctx, "omar@example.com", "secret123")
	require.NoError(t, err)

	ident, err := sc.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", ident.AccessToken)
	assert.Zero(t, accounts.refreshCalls)

	sc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	ident, err = sc.Resolve(ctx)
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, "refreshed-access", ident.AccessToken)
	assert.Equal(t, 1, accounts.refreshCalls)
}

func TestRedisStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	store := NewRedisStore(client, time.Hour)
	defer store.Close()
	ctx := context.Background()

	got, err := store.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Save(ctx, "sid", *testIdentity()))
	assert.True(t, s.Exists("portal:session:sid"))
	assert.Equal(t, time.Hour, s.TTL("portal:session:sid"))

	got, err = store.Load(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "refresh-1", got.RefreshToken)

	s.FastForward(2 * time.Hour)
	got, err = store.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got, "expired sessions disappear")

	require.NoError(t, store.Save(ctx, "sid", *testIdentity()))
	require.NoError(t, store.Delete(ctx, "sid"))
	assert.False(t, s.Exists("portal:session:sid"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("portal:session:bad", "{not json"))
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: s.Addr()}), 0)

	_, err = store.Load(context.Background(), "bad")
	assert.ErrorContains(t, err, "failed to decode session")
}
