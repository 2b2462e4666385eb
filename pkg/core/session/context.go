// Package session holds the signed-in identity of one browser session.
//
// A Context is created per browser session and handed to page controllers
// explicitly; there is no package-level current user. SignIn, SignUp and
// SignOut are the only operations that change the identity, and listeners
// registered with Subscribe run whenever it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// Listener is told about every identity transition. prev and next are copies
// and either may be nil.
type Listener func(prev, next *model.Identity)

// Context is the identity holder for one browser session
type Context struct {
	mu        sync.RWMutex
	sid       string
	accounts  db.AccountStore
	store     Store
	logger    *zap.Logger
	now       func() time.Time
	current   *model.Identity
	listeners map[int]Listener
	nextID    int
}

// New creates a signed-out context for the browser session sid
func New(sid string, accounts db.AccountStore, store Store, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		sid:       sid,
		accounts:  accounts,
		store:     store,
		logger:    logger.With(zap.String("session", shortID(sid))),
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

func shortID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}

// ID returns the browser-session id
func (c *Context) ID() string {
	return c.sid
}

// Current returns a copy of the signed-in identity, or nil
func (c *Context) Current() *model.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIdentity(c.current)
}

func copyIdentity(ident *model.Identity) *model.Identity {
	if ident == nil {
		return nil
	}
	cp := *ident
	return &cp
}

// Subscribe registers fn for identity transitions and returns a function that
// removes it
func (c *Context) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Restore asks the identity provider whether the stored session is still
// valid, refreshing an expired access token when possible. A missing or
// rejected session leaves the context signed out without an error.
func (c *Context) Restore(ctx context.Context) (*model.Identity, error) {
	stored, err := c.store.Load(ctx, c.sid)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored session: %w", err)
	}
	if stored == nil {
		c.set(nil)
		return nil, nil
	}

	ident, err := c.validate(ctx, *stored)
	if errors.Is(err, db.ErrUnauthenticated) {
		c.logger.Debug("Stored session rejected, signing out locally")
		if err := c.store.Delete(ctx, c.sid); err != nil {
			c.logger.Warn("Failed to delete stale session", zap.Error(err))
		}
		c.set(nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	if err := c.store.Save(ctx, c.sid, *ident); err != nil {
		c.logger.Warn("Failed to persist restored session", zap.Error(err))
	}
	c.set(ident)
	return copyIdentity(ident), nil
}

// validate confirms the identity with the provider, refreshing when expired
func (c *Context) validate(ctx context.Context, stored model.Identity) (*model.Identity, error) {
	if stored.Expired(c.now()) {
		if stored.RefreshToken == "" {
			return nil, db.ErrUnauthenticated
		}
		refreshed, err := c.accounts.Refresh(ctx, stored.RefreshToken)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Access token refreshed", zap.String("user_id", refreshed.UserID))
		return refreshed, nil
	}

	current, err := c.accounts.GetCurrent(ctx, stored.AccessToken)
	if err != nil {
		return nil, err
	}
	// the provider does not echo the refresh token back
	current.RefreshToken = stored.RefreshToken
	if current.ExpiresAt.IsZero() {
		current.ExpiresAt = stored.ExpiresAt
	}
	return current, nil
}

// Resolve returns the current identity, refreshing it first when its access
// token has expired. Page controllers call it once at the start of each mount.
func (c *Context) Resolve(ctx context.Context) (*model.Identity, error) {
	current := c.Current()
	if current == nil || !current.Expired(c.now()) {
		return current, nil
	}
	return c.Restore(ctx)
}

// SignIn authenticates with e-mail and password
func (c *Context) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	ident, err := c.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, c.sid, *ident); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	c.logger.Info("Signed in", zap.String("user_id", ident.UserID))
	c.set(ident)
	return copyIdentity(ident), nil
}

// SignUp creates an account with the profile seed. The identity is nil when
// the provider wants the e-mail address confirmed before signing in.
func (c *Context) SignUp(ctx context.Context, email, password string, seed model.ProfileAttributes) (*model.Identity, error) {
	ident, err := c.accounts.CreateAccount(ctx, email, password, seed)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		c.logger.Info("Account created, awaiting e-mail confirmation")
		return nil, nil
	}
	if err := c.store.Save(ctx, c.sid, *ident); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	c.logger.Info("Account created", zap.String("user_id", ident.UserID))
	c.set(ident)
	return copyIdentity(ident), nil
}

// SignOut tears the session down locally even when the provider call fails
func (c *Context) SignOut(ctx context.Context) error {
	current := c.Current()
	if current == nil {
		return nil
	}

	var remoteErr error
	if err := c.accounts.SignOut(ctx, *current); err != nil {
		c.logger.Warn("Remote sign-out failed", zap.Error(err))
		remoteErr = fmt.Errorf("failed to sign out remotely: %w", err)
	}
	if err := c.store.Delete(ctx, c.sid); err != nil {
		c.logger.Warn("Failed to delete stored session", zap.Error(err))
	}
	c.logger.Info("Signed out", zap.String("user_id", current.UserID))
	c.set(nil)
	return remoteErr
}

// set replaces the identity and notifies listeners when the signed-in user changed
func (c *Context) set(next *model.Identity) {
	c.mu.Lock()
	prev := c.current
	c.current = copyIdentity(next)
	changed := (prev == nil) != (next == nil) || (prev != nil && next != nil && prev.UserID != next.UserID)
	var listeners []Listener
	if changed {
		for _, fn := range c.listeners {
			listeners = append(listeners, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(copyIdentity(prev), copyIdentity(next))
	}
}
