// Package guard decides whether a navigation may proceed based on the
// session state. Decisions are synchronous and never touch the network.
package guard

import (
	"context"
	"net/url"
	"strings"

	"github.com/jrsteele09/erp-session/sessions"
)

// Decision is the outcome of a guard. When Allow is false Redirect holds the
// route to navigate to instead.
type Decision struct {
	Allow     bool
	Redirect  string
	ReturnURL string // Destination captured for replay after login
}

// Guard evaluates the protected and public-only predicates against a
// session state. A nil or uninitialized state is treated as signed out.
type Guard struct {
	state *sessions.State
}

// New creates a Guard reading state
func New(state *sessions.State) *Guard {
	return &Guard{state: state}
}

func (g *Guard) authenticated(ctx context.Context) bool {
	if g == nil || g.state == nil || !g.state.Initialized() {
		return false
	}
	return g.state.IsAuthenticated(ctx)
}

// Protected allows authenticated users. Everyone else is sent to the login
// route with the requested path attached as returnUrl.
func (g *Guard) Protected(ctx context.Context, path string) Decision {
	if g.authenticated(ctx) {
		return Decision{Allow: true}
	}
	return Decision{
		Redirect:  LoginURL(path),
		ReturnURL: path,
	}
}

// PublicOnly allows users without a session. Authenticated users are sent to
// the landing route.
func (g *Guard) PublicOnly(ctx context.Context, _ string) Decision {
	if g.authenticated(ctx) {
		return Decision{Redirect: LandingRoute}
	}
	return Decision{Allow: true}
}

// Resolve applies the route table to path.
func (g *Guard) Resolve(ctx context.Context, path string) Decision {
	route := Match(path)
	switch route.Kind {
	case RoutePublicOnly:
		return g.PublicOnly(ctx, path)
	case RouteProtected:
		return g.Protected(ctx, path)
	default:
		return Decision{Redirect: route.RedirectTo}
	}
}

// LoginURL builds the login route carrying returnURL. An empty returnURL
// gives the bare login route.
func LoginURL(returnURL string) string {
	if returnURL == "" {
		return LoginRoute
	}
	return LoginRoute + "?" + url.Values{ReturnURLParam: {returnURL}}.Encode()
}

// ReturnDestination validates a returnUrl value for replay after login.
// Only local absolute paths are honoured; anything else, including the
// login route itself, yields the landing route.
func ReturnDestination(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return LandingRoute
	}
	if strings.ContainsAny(raw, "\r\n\t") {
		return LandingRoute
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return LandingRoute
	}
	if normalize(u.Path) == LoginRoute {
		return LandingRoute
	}
	return raw
}
