package guard

import (
	"strings"
)

// Local routes
const (
	LoginRoute     = "/login"
	LandingRoute   = "/dashboard"
	ReturnURLParam = "returnUrl"
)

// RouteKind selects which guard applies to a route
type RouteKind int

const (
	RouteProtected  RouteKind = iota // Requires a session
	RoutePublicOnly                  // Only reachable without a session
	RouteRedirect                    // Always redirects to RedirectTo
)

// Route is one entry of the route table. A Pattern ending in "/**" matches
// the route itself and everything below it; "**" alone matches any path.
type Route struct {
	Pattern    string
	Kind       RouteKind
	RedirectTo string
}

// Routes is the application route table, matched in order.
var Routes = []Route{
	{Pattern: "", Kind: RouteRedirect, RedirectTo: LandingRoute},
	{Pattern: LoginRoute, Kind: RoutePublicOnly},
	{Pattern: LandingRoute + "/**", Kind: RouteProtected},
	{Pattern: "**", Kind: RouteRedirect, RedirectTo: LandingRoute},
}

// Match returns the first route in Routes matching path. The query string
// and fragment are ignored.
func Match(path string) Route {
	p := normalize(path)
	for _, r := range Routes {
		if r.matches(p) {
			return r
		}
	}
	return Route{Pattern: "**", Kind: RouteRedirect, RedirectTo: LandingRoute}
}

func (r Route) matches(p string) bool {
	switch {
	case r.Pattern == "**":
		return true
	case strings.HasSuffix(r.Pattern, "/**"):
		base := strings.TrimSuffix(r.Pattern, "/**")
		return p == base || strings.HasPrefix(p, base+"/")
	default:
		return p == r.Pattern
	}
}

// normalize strips the query and fragment and the trailing slash, so "/"
// and "" both become the empty route.
func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.TrimRight(path, "/")
}
