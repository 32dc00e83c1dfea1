package server

import (
	"net/http"

	"github.com/jrsteele09/erp-session/guard"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// InteractiveStartHandler sends the browser to Google (GET /auth/google/start).
// flow defaults to the interactive flow.
func (s *Server) InteractiveStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := r.URL.Query().Get(guard.ReturnURLParam)

		flow := widget.FlowInteractive
		if raw := r.URL.Query().Get(flowParam); raw != "" {
			parsed, err := widget.ParseFlow(raw)
			if err != nil {
				http.Error(w, "Invalid flow parameter", http.StatusBadRequest)
				return
			}
			flow = parsed
		}

		authURL, _, err := s.identity.Begin(flow, returnURL)
		if err != nil {
			log.Err(err).Str("flow", string(flow)).Msg("failed to start google sign in")
			s.login.Notices().Show(login.NoticeError, login.MsgGeneric)
			redirect(w, r, guard.LoginURL(returnURL))
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// GoogleCallbackHandler completes the redirect flow (GET /auth/google/callback)
func (s *Server) GoogleCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.FormValue("state")
		code := r.FormValue("code")

		if errorParam := r.FormValue("error"); errorParam != "" {
			log.Info().Str("error", errorParam).Str("description", r.FormValue("error_description")).Msg("google sign in declined")
			var returnURL string
			if state != "" {
				// Consumes the pending flow
				if _, recorded, err := s.identity.Complete(r.Context(), state, ""); err == nil {
					returnURL = recorded
				}
			}
			s.login.Notices().Show(login.NoticeError, login.MsgUnavailable)
			redirect(w, r, guard.LoginURL(returnURL))
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		result, returnURL, err := s.identity.Complete(r.Context(), state, code)
		if err != nil {
			log.Warn().Err(err).Msg("google callback with unknown state")
			s.login.Notices().Show(login.NoticeError, login.MsgGeneric)
			redirect(w, r, RouteLogin)
			return
		}

		outcome, err := s.login.SubmitResult(r.Context(), result, returnURL)
		s.finishLogin(w, r, outcome, err, returnURL)
	}
}

// LogoutHandler signs out (POST /auth/logout). Logout never fails.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirect(w, r, s.login.Logout(r.Context()))
	}
}

// finishLogin navigates after a sign in attempt. An automatic fallback
// starts the interactive flow; other failures return to the login page
// where the controller has already posted a notice.
func (s *Server) finishLogin(w http.ResponseWriter, r *http.Request, outcome *login.Outcome, err error, returnURL string) {
	if err == nil {
		redirect(w, r, outcome.Redirect)
		return
	}

	var fallback *login.FallbackError
	if errors.As(err, &fallback) && fallback.Automatic {
		redirect(w, r, interactiveStartURL(returnURL))
		return
	}
	if internalErrors.Is(err, internalErrors.ErrLoginInProgress) {
		s.login.Notices().Show(login.NoticeInfo, login.UserMessage(err))
	}
	redirect(w, r, guard.LoginURL(returnURL))
}
