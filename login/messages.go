package login

import (
	"fmt"

	"github.com/jrsteele09/erp-session/auth"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/users"
)

const (
	MsgGeneric            = "Sign in failed. Please try again."
	MsgInvalidCredentials = "Your Google sign-in is invalid or has expired. Please try again."
	MsgUnauthorized       = "Your account is not allowed to use the ERP."
	MsgConnectivity       = "Could not reach the server. Check your connection and try again."
	MsgMalformed          = "The server sent an invalid response. Please try again."
	MsgInProgress         = "A sign in is already in progress."
	MsgUnavailable        = "Google did not return a credential. Please try again."
	MsgFallback           = "Quick sign in was not accepted. Continue with Google to grant access."
	MsgSignedOut          = "You have signed out."
)

// UserMessage turns a login error into the text shown to the user. A message
// sent by the backend wins over the category text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if internalErrors.Is(err, internalErrors.ErrFallbackAvailable) {
		return MsgFallback
	}
	if rejected, ok := auth.IsRejected(err); ok {
		if rejected.Message != "" {
			return rejected.Message
		}
		switch rejected.Category() {
		case auth.CategoryInvalidCredentials:
			return MsgInvalidCredentials
		case auth.CategoryUnauthorized:
			return MsgUnauthorized
		case auth.CategoryConnectivity:
			return MsgConnectivity
		default:
			return MsgGeneric
		}
	}
	switch {
	case internalErrors.Is(err, internalErrors.ErrMalformedAuthResponse):
		return MsgMalformed
	case internalErrors.Is(err, internalErrors.ErrLoginInProgress):
		return MsgInProgress
	case internalErrors.Is(err, internalErrors.ErrCredentialUnavailable),
		internalErrors.Is(err, internalErrors.ErrEmptyCredential):
		return MsgUnavailable
	default:
		return MsgGeneric
	}
}

// WelcomeMessage greets user after a successful sign in
func WelcomeMessage(appName string, user *users.Profile) string {
	if appName == "" {
		return fmt.Sprintf("Welcome %s!", user.DisplayName())
	}
	return fmt.Sprintf("Welcome %s! You are signed in to %s.", user.DisplayName(), appName)
}
