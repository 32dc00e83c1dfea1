package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/internal/config"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/rs/zerolog/log"
)

// googleCSRFField is the double submit token the sign in button sends both
// as a cookie and as a form field.
const googleCSRFField = "g_csrf_token"

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName         string
	ClientID        string
	LoginURI        string // Where the sign in button posts the credential
	InteractiveURL  string // Starts the interactive flow directly
	ShowInteractive bool
	Busy            bool
	Notice          *login.Notice
}

// LoginPageUIHandler displays the login page (GET /login)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := r.URL.Query().Get(guard.ReturnURLParam)

		data := LoginPageData{
			AppName:         s.config.GetAppName(),
			ClientID:        s.identity.ClientID(),
			LoginURI:        s.credentialLoginURI(returnURL),
			InteractiveURL:  interactiveStartURL(returnURL),
			ShowInteractive: s.login.FallbackMode() != config.FallbackOff,
			Busy:            s.login.Busy(),
		}
		if notice, ok := s.login.Notices().Current(); ok {
			data.Notice = &notice
		}
		s.render(w, loginTemplate, data)
	}
}

// CredentialSubmissionHandler receives the ID token posted by the sign in
// button (POST /auth/google/credential) and exchanges it.
func (s *Server) CredentialSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		if !validGoogleCSRF(r) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("credential post failed the csrf check")
			http.Error(w, "Invalid CSRF token", http.StatusBadRequest)
			return
		}

		returnURL := r.URL.Query().Get(guard.ReturnURLParam)
		result := widget.Result{Flow: widget.FlowOneShot, Credential: r.PostForm.Get("credential")}

		if result.Credential != "" {
			identity, err := s.identity.VerifyCredential(r.Context(), result.Credential)
			if err != nil {
				log.Warn().Err(err).Msg("id token from the sign in button failed verification")
				result = widget.Result{Flow: widget.FlowOneShot, Err: fmt.Errorf("%w: %w", internalErrors.ErrCredentialUnavailable, err)}
			} else {
				log.Debug().Str("email", identity.Email).Msg("id token verified")
			}
		}

		outcome, err := s.login.SubmitResult(r.Context(), result, returnURL)
		s.finishLogin(w, r, outcome, err, returnURL)
	}
}

func validGoogleCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(googleCSRFField)
	if err != nil || cookie.Value == "" {
		return false
	}
	field := r.PostForm.Get(googleCSRFField)
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(field)) == 1
}
