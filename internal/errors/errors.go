package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Session errors
	ErrInvalidSessionData = errors.New("invalid session data")
	ErrStorageCorrupted   = errors.New("stored session is corrupted")

	// Exchange errors
	ErrEmptyCredential       = errors.New("credential is empty")
	ErrMalformedAuthResponse = errors.New("malformed authentication response")

	// Login flow errors
	ErrLoginInProgress       = errors.New("login already in progress")
	ErrCredentialUnavailable = errors.New("identity provider returned no credential")
	ErrFallbackAvailable     = errors.New("credential rejected, interactive sign-in available")

	// Storage errors
	ErrStoreClosed = errors.New("store closed")
	ErrInvalidKey  = errors.New("invalid store key")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
