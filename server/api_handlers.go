package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/erp-session/token"
	"github.com/jrsteele09/erp-session/users"
	"github.com/rs/zerolog/log"
)

// SessionStatusResponse is the body of GET /api/session. The token itself
// never leaves the process.
type SessionStatusResponse struct {
	Authenticated   bool           `json:"authenticated"`
	User            *users.Profile `json:"user,omitempty"`
	Token           *TokenSummary  `json:"token,omitempty"`
	LoginInProgress bool           `json:"login_in_progress"`
}

type TokenSummary struct {
	Kind      token.Kind `json:"kind"`
	Length    int        `json:"length"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// SessionStatusHandler reports the session state (GET /api/session)
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SessionStatusResponse{
			Authenticated:   s.state.IsAuthenticated(r.Context()),
			LoginInProgress: s.login.Busy(),
		}
		if resp.Authenticated {
			resp.User = s.state.CurrentUser()
			raw := s.state.Token()
			info := token.Inspect(raw)
			resp.Token = &TokenSummary{Kind: info.Kind, Length: info.Length, Expired: info.Kind == token.KindJWT && token.IsExpired(raw)}
			if !info.ExpiresAt.IsZero() {
				resp.Token.ExpiresAt = &info.ExpiresAt
			}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Err(err).Msg("failed to encode session status")
		}
	}
}
