package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

type contextKey int

const (
	workspaceKey contextKey = iota
	identityKey
)

// requestLogger logs one line per request with the chi request id
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				logger.Warn("Request failed", fields...)
				return
			}
			logger.Debug("Request", fields...)
		})
	}
}

// markPlaintext tells gorilla/csrf that a request arrived over plain HTTP so
// it skips the HTTPS-only Referer check. Behind TLS this is a no-op.
func (s *Server) markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil && !s.opts.SecureCookies {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) csrfFailed(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("CSRF check failed",
		zap.String("path", r.URL.Path),
		zap.Error(csrf.FailureReason(r)),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	if isAPIRequest(r) {
		writeJSON(w, http.StatusForbidden, errorResponse("Invalid or missing CSRF token"))
		return
	}
	http.Error(w, "Forbidden - invalid form token, please reload the page", http.StatusForbidden)
}

// withWorkspace binds the request to the workspace of its browser session,
// issuing a new session cookie when the request has none
func (s *Server) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := s.sessionID(r)
		if !ok {
			var err error
			sid, err = s.issueSession(w)
			if err != nil {
				s.logger.Error("Failed to issue session cookie", zap.Error(err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		ws := s.workspaces.get(sid, s.now())
		ident := ws.identity(r.Context())

		ctx := context.WithValue(r.Context(), workspaceKey, ws)
		ctx = context.WithValue(ctx, identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireMember sends guests to the login page
func (s *Server) requireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r) == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireMemberAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r) == nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse("Please login to continue."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func workspaceFrom(r *http.Request) *workspace {
	ws, _ := r.Context().Value(workspaceKey).(*workspace)
	return ws
}

// identityFrom is the identity resolved when the request arrived; nil for guests
func identityFrom(r *http.Request) *model.Identity {
	ident, _ := r.Context().Value(identityKey).(*model.Identity)
	return ident
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}
