package postgres

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// accessClaims are carried by access tokens. The JWT id is the auth session id,
// so signing out (deleting the session) revokes outstanding access tokens.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (d *DB) signAccessToken(sessionID, userID, email string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(d.tokens.AccessTTL)
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.tokens.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// parseAccessToken verifies the signature and expiry of an access token
func (d *DB) parseAccessToken(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return d.tokens.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(d.now))
	if err != nil || !parsed.Valid {
		return nil, db.ErrUnauthenticated
	}
	return claims, nil
}

// startSession records a new auth session and issues its token pair
func (d *DB) startSession(ctx context.Context, q querier, userID, email string) (*model.Identity, error) {
	now := d.now()
	sessionID := uuid.NewString()
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO auth_sessions (id, user_id, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sessionID, userID, refresh, now.Add(d.tokens.RefreshTTL).UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}

	access, expiresAt, err := d.signAccessToken(sessionID, userID, email, now)
	if err != nil {
		return nil, err
	}

	return &model.Identity{
		UserID:       userID,
		Email:        email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// CreateAccount stores the account, seeds its profile and starts a session in one transaction
func (d *DB) CreateAccount(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash)
		VALUES ($1, $2)
		RETURNING id::text
	`, email, string(hash)).Scan(&userID)
	if err != nil {
		if pgErrorCode(err) == "23505" {
			return nil, db.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (user_id, email, full_name, phone, city, availability, skills, bio)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, userID, email, seed.FullName, seed.Phone, seed.City, seed.Availability, seed.Skills, seed.Bio)
	if err != nil {
		return nil, fmt.Errorf("failed to seed profile: %w", err)
	}

	ident, err := d.startSession(ctx, tx, userID, email)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit account: %w", err)
	}

	d.logger.Debug("Account created", zap.String("user_id", userID))
	return ident, nil
}

func (d *DB) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	var userID, storedEmail, hash string
	err := d.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash FROM accounts WHERE lower(email) = $1
	`, strings.ToLower(email)).Scan(&userID, &storedEmail, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, db.ErrInvalidCredentials
	}

	return d.startSession(ctx, d.pool, userID, storedEmail)
}

func (d *DB) GetCurrent(ctx context.Context, accessToken string) (*model.Identity, error) {
	claims, err := d.parseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = d.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM auth_sessions WHERE id = $1 AND user_id = $2 AND expires_at > $3)
	`, claims.ID, claims.Subject, d.now().UTC()).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check auth session: %w", err)
	}
	if !exists {
		return nil, db.ErrUnauthenticated
	}

	return &model.Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates the refresh token and issues a new access token for the same session
func (d *DB) Refresh(ctx context.Context, refreshToken string) (*model.Identity, error) {
	next, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	var sessionID, userID, email string
	err = d.pool.QueryRow(ctx, `
		UPDATE auth_sessions s
		SET refresh_token = $2
		FROM accounts a
		WHERE s.refresh_token = $1 AND s.expires_at > $3 AND a.id = s.user_id
		RETURNING s.id::text, a.id::text, a.email
	`, refreshToken, next, d.now().UTC()).Scan(&sessionID, &userID, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	access, expiresAt, err := d.signAccessToken(sessionID, userID, email, d.now())
	if err != nil {
		return nil, err
	}
	return &model.Identity{
		UserID:       userID,
		Email:        email,
		AccessToken:  access,
		RefreshToken: next,
		ExpiresAt:    expiresAt,
	}, nil
}

// SignOut deletes the auth session, revoking both tokens
func (d *DB) SignOut(ctx context.Context, ident model.Identity) error {
	claims, err := d.parseAccessToken(ident.AccessToken)
	if err != nil {
		// an expired token can still name its session through the refresh token
		_, err := d.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE refresh_token = $1`, ident.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to delete auth session: %w", err)
		}
		return nil
	}

	if _, err := d.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, claims.ID); err != nil {
		return fmt.Errorf("failed to delete auth session: %w", err)
	}
	return nil
}

// authorize resolves the identity's user id, or db.ErrUnauthenticated
func (d *DB) authorize(ctx context.Context, ident model.Identity) (string, error) {
	current, err := d.GetCurrent(ctx, ident.AccessToken)
	if err != nil {
		return "", err
	}
	if current.UserID != ident.UserID {
		return "", db.ErrUnauthenticated
	}
	return current.UserID, nil
}
