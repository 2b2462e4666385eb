// Package web serves the volunteer portal: server-rendered pages for the
// browser and a small JSON API over the same page controllers.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

const (
	defaultCookieName   = "portal_session"
	defaultSessionTTL   = 7 * 24 * time.Hour
	defaultMutationWait = 2 * time.Second
	csrfCookieName      = "portal_csrf"
	sweepInterval       = 5 * time.Minute
)

// Options configures a Server
type Options struct {
	Backend  db.Backend
	Sessions session.Store
	// Mailer is optional
	Mailer services.Mailer

	CookieName    string
	SessionSecret []byte
	CSRFKey       []byte
	SessionTTL    time.Duration
	SecureCookies bool

	// MutationWait bounds how long a form post waits for its write to settle
	// before redirecting
	MutationWait   time.Duration
	AllowedOrigins []string
}

// Server holds the per-browser-session workspaces and the HTTP routes
type Server struct {
	opts       Options
	logger     *zap.Logger
	pages      *pageSet
	workspaces *registry
	handler    http.Handler
	now        func() time.Time
}

// New validates the options and builds the router
func New(opts Options, logger *zap.Logger) (*Server, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("a backend is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("a session store is required")
	}
	if len(opts.SessionSecret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	if len(opts.CSRFKey) != 32 {
		return nil, fmt.Errorf("csrf key must be 32 bytes")
	}
	if opts.CookieName == "" {
		opts.CookieName = defaultCookieName
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.MutationWait <= 0 {
		opts.MutationWait = defaultMutationWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pages, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:   opts,
		logger: logger,
		pages:  pages,
		now:    time.Now,
	}
	s.workspaces = newRegistry(s.newWorkspace, opts.SessionTTL)

	trusted, err := originHosts(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	s.handler = s.routes(trusted)

	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(trustedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.markPlaintext)
		r.Use(csrf.Protect(s.opts.CSRFKey,
			csrf.Secure(s.opts.SecureCookies),
			csrf.Path("/"),
			csrf.CookieName(csrfCookieName),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.TrustedOrigins(trustedOrigins),
			csrf.ErrorHandler(http.HandlerFunc(s.csrfFailed)),
		))
		r.Use(s.withWorkspace)

		r.Get("/", s.handleLanding)
		r.Get("/register", s.handleRegisterForm)
		r.Post("/register", s.handleRegister)
		r.Get("/login", s.handleLoginForm)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/opportunities", s.handleOpportunities)
		r.Post("/opportunities/{activityID}/join", s.handleJoin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireMember)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/activities", s.handleActivities)
			r.Post("/activities/{assignmentID}/cancel", s.handleCancel)
			r.Get("/profile", s.handleProfileForm)
			r.Post("/profile", s.handleProfile)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.opts.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
				ExposedHeaders:   []string{"X-CSRF-Token"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
			r.Get("/me", s.apiMe)
			r.Get("/opportunities", s.apiOpportunities)
			r.Post("/opportunities/{activityID}/join", s.apiJoin)
			r.Get("/notifications", s.apiNotifications)

			r.Group(func(r chi.Router) {
				r.Use(s.requireMemberAPI)
				r.Get("/assignments", s.apiAssignments)
				r.Post("/assignments/{assignmentID}/cancel", s.apiCancel)
			})
		})
	})

	return r
}

// Run serves on addr until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepIdle(sweepCtx)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Portal listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down portal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) sweepIdle(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.workspaces.sweep(s.now()); n > 0 {
				s.logger.Debug("Dropped idle workspaces", zap.Int("count", n))
			}
		}
	}
}

// originHosts converts allowed origins to the host list gorilla/csrf trusts
func originHosts(origins []string) ([]string, error) {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid allowed origin %q", origin)
		}
		hosts = append(hosts, u.Host)
	}
	return hosts, nil
}
