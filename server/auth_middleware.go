package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the signed in users.Profile
	ContextKeyUser ContextKey = "user"
)

// UserFromContext returns the profile RequireSession attached to ctx
func UserFromContext(ctx context.Context) *users.Profile {
	user, _ := ctx.Value(ContextKeyUser).(*users.Profile)
	return user
}

// SessionSyncMiddleware drops the in-memory session when another process
// has replaced or cleared the shared record.
func (s *Server) SessionSyncMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.state.Reconcile(r.Context()) {
			log.Info().Str("path", r.URL.Path).Msg("session changed outside this process")
		}
		next(w, r)
	}
}

// RequireSession is the protected route guard. Visitors without a session
// are sent to the login page with the requested URL as returnUrl.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := s.guard.Protected(r.Context(), r.URL.RequestURI())
			if !decision.Allow {
				redirect(w, r, decision.Redirect)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, s.state.CurrentUser())
			next(w, r.WithContext(ctx))
		}
	}
}

// RequirePublicOnly is the public-only route guard. Signed in users are sent
// to the dashboard.
func (s *Server) RequirePublicOnly() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := s.guard.PublicOnly(r.Context(), r.URL.Path)
			if !decision.Allow {
				redirect(w, r, decision.Redirect)
				return
			}
			next(w, r)
		}
	}
}

// ResolveHandler applies the route table to paths no other route claims
func (s *Server) ResolveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision := s.guard.Resolve(r.Context(), r.URL.RequestURI())
		if decision.Allow {
			// Variants such as "/login/" land on the canonical route
			target := RouteLogin
			if guard.Match(r.URL.Path).Kind == guard.RouteProtected {
				target = RouteDashboard
			}
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			redirect(w, r, target)
			return
		}
		redirect(w, r, decision.Redirect)
	}
}
