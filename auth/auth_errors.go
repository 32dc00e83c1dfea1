package auth

import (
	"errors"
	"fmt"
)

// RejectionCategory groups exchange rejections by what the user can do.
type RejectionCategory int

const (
	CategoryGeneric            RejectionCategory = iota // Retry later
	CategoryInvalidCredentials                          // 401: credential invalid or expired
	CategoryUnauthorized                                // 403: account not allowed in
	CategoryConnectivity                                // Backend could not be reached
)

func (c RejectionCategory) String() string {
	switch c {
	case CategoryInvalidCredentials:
		return "invalid_credentials"
	case CategoryUnauthorized:
		return "unauthorized"
	case CategoryConnectivity:
		return "connectivity"
	default:
		return "generic"
	}
}

// ExchangeRejectedError is returned when the backend could not be reached or
// answered with a non-2xx status. StatusCode is 0 for transport failures.
type ExchangeRejectedError struct {
	StatusCode int
	Message    string // Error text from the response body, if any
	Err        error  // Underlying transport error
}

func (e *ExchangeRejectedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("exchange failed: %v", e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("exchange rejected: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("exchange rejected: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *ExchangeRejectedError) Unwrap() error {
	return e.Err
}

// Category maps the status code to a RejectionCategory
func (e *ExchangeRejectedError) Category() RejectionCategory {
	switch e.StatusCode {
	case 0:
		return CategoryConnectivity
	case 401:
		return CategoryInvalidCredentials
	case 403:
		return CategoryUnauthorized
	default:
		return CategoryGeneric
	}
}

// IsRejected returns the rejection in err's chain, if any.
func IsRejected(err error) (*ExchangeRejectedError, bool) {
	var rejected *ExchangeRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
