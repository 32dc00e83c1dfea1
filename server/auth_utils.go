package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/widget"
)

// interactiveStartURL starts the interactive flow, keeping returnURL
func interactiveStartURL(returnURL string) string {
	q := url.Values{flowParam: {string(widget.FlowInteractive)}}
	if returnURL != "" {
		q.Set(guard.ReturnURLParam, returnURL)
	}
	return RouteGoogleStart + "?" + q.Encode()
}

// credentialLoginURI is the absolute URL the sign in button posts to. The
// button requires an absolute login_uri.
func (s *Server) credentialLoginURI(returnURL string) string {
	uri := strings.TrimRight(s.config.GetBaseURL(), "/") + RouteGoogleCredential
	if returnURL != "" {
		uri += "?" + url.Values{guard.ReturnURLParam: {returnURL}}.Encode()
	}
	return uri
}

// sameSiteRequest reports whether a state changing request came from this
// front end. An Origin header must match the request host, the base URL or an
// allowed origin. Without one, only a cross-site Sec-Fetch-Site is refused.
func (s *Server) sameSiteRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		switch r.Header.Get("Sec-Fetch-Site") {
		case "cross-site", "same-site":
			return false
		}
		return true
	}
	if origin == getScheme(r)+"://"+r.Host || origin == originOf(s.config.GetBaseURL()) {
		return true
	}
	return s.config.GetAllowedOrigins().IsAllowedOrigin(origin)
}

// originOf returns scheme://host of rawURL, or "" when it has no host
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
