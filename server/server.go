// Package server is the local front end. It renders the login and dashboard
// pages through the guard pair, receives credentials from the Google sign in
// button and the redirect flow, and runs logout.
package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/internal/config"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/jrsteele09/erp-session/widget/google"
	"github.com/rs/zerolog/log"
)

// IdentityProvider is what the front end needs from the Google widget
type IdentityProvider interface {
	ClientID() string
	Begin(flow widget.Flow, returnURL string) (authURL string, state string, err error)
	Complete(ctx context.Context, state, code string) (widget.Result, string, error)
	VerifyCredential(ctx context.Context, rawIDToken string) (*google.Identity, error)
}

var _ IdentityProvider = (*google.Provider)(nil)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	state     *sessions.State
	guard     *guard.Guard
	login     *login.Controller
	identity  IdentityProvider
	templates map[string]*template.Template
	nowTime   func() time.Time
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithNowTime replaces the clock used for the dashboard greeting
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(config config.Config, state *sessions.State, controller *login.Controller, identity IdentityProvider, options ...ServerOption) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if state == nil {
		return nil, fmt.Errorf("[Server New] session state is required")
	}
	if controller == nil {
		return nil, fmt.Errorf("[Server New] login controller is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("[Server New] identity provider is required")
	}

	templates, err := parseTemplates(loginTemplate, dashboardTemplate)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		state:     state,
		guard:     guard.New(state),
		login:     controller,
		identity:  identity,
		templates: templates,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
