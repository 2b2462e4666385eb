package supabaseclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// authSession is the GoTrue session payload. Sign-up returns a bare user
// (no access token) when e-mail confirmation is required.
type authSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         authUser `json:"user"`
}

func (s authSession) identity(now time.Time) *model.Identity {
	if s.AccessToken == "" {
		return nil
	}
	expiresAt := now.Add(time.Duration(s.ExpiresIn) * time.Second)
	if s.ExpiresAt > 0 {
		expiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return &model.Identity{
		UserID:       s.User.ID,
		Email:        s.User.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// signUpMetadata is stored as user metadata; a database trigger seeds the profile row from it
type signUpMetadata struct {
	FullName     string   `json:"full_name"`
	Phone        string   `json:"phone"`
	City         *string  `json:"city"`
	Availability *string  `json:"availability"`
	Skills       []string `json:"skills"`
	Bio          *string  `json:"bio"`
}

func (c *Client) CreateAccount(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data": signUpMetadata{
			FullName:     seed.FullName,
			Phone:        seed.Phone,
			City:         seed.City,
			Availability: seed.Availability,
			Skills:       seed.Skills,
			Bio:          seed.Bio,
		},
	}

	var sess authSession
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: body}, &sess); err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	return sess.identity(time.Now()), nil
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	var sess authSession
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &sess)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	ident := sess.identity(time.Now())
	if ident == nil {
		return nil, fmt.Errorf("failed to sign in: no session returned")
	}
	return ident, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*model.Identity, error) {
	var sess authSession
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &sess)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	ident := sess.identity(time.Now())
	if ident == nil {
		return nil, db.ErrUnauthenticated
	}
	return ident, nil
}

func (c *Client) GetCurrent(ctx context.Context, accessToken string) (*model.Identity, error) {
	if accessToken == "" {
		return nil, db.ErrUnauthenticated
	}
	var user authUser
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", bearer: accessToken}, &user)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &model.Identity{UserID: user.ID, Email: user.Email, AccessToken: accessToken}, nil
}

func (c *Client) SignOut(ctx context.Context, ident model.Identity) error {
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", bearer: ident.AccessToken}, nil)
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}
