package server

import "github.com/jrsteele09/erp-session/guard"

// Route path constants
const (
	RouteLogin = guard.LoginRoute

	// Google sign in
	RouteGoogleCredential = "/auth/google/credential" // Sign in button posts here (redirect ux_mode)
	RouteGoogleStart      = "/auth/google/start"
	RouteGoogleCallback   = "/auth/google/callback"
	RouteLogout           = "/auth/logout"

	// Protected pages
	RouteDashboard        = guard.LandingRoute
	RouteDashboardSection = guard.LandingRoute + "/{section...}"

	// API Routes
	RouteAPISession = "/api/session"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	flowParam = "flow"
)
