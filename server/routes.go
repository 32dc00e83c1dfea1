package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	// Everything unmatched goes through the route table
	s.RegisterRouteHandler("GET /", ChainMiddleware(s.ResolveHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageUIHandler(), s.HTMLMiddleWare(s.RequirePublicOnly())...))
	s.RegisterRouteHandler("POST "+RouteGoogleCredential, ChainMiddleware(s.CredentialSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteGoogleStart, ChainMiddleware(s.InteractiveStartHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteGoogleCallback, ChainMiddleware(s.GoogleCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare(s.SameOriginMiddleware)...))

	// Dashboard (requires a session)
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteDashboardSection, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.RequireSession())...))

	// API routes
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAPISession, ChainMiddleware(s.SessionStatusHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler(), s.CacheMiddleware))
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := strings.TrimPrefix(r.URL.Path, "/")
		if filePath == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		err := StreamFile(w, r, filePath)
		if err != nil {
			logError("GET", filePath, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}

func logError(method, path, error string) {
	log.Warn().Msgf("[%-19s] %s %s", colouredMethod(method), path, Red+error+ResetColor)
}

// redirect sends a See Other so a POST is never replayed
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}
