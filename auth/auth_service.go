// Package auth exchanges identity provider credentials for application
// sessions and runs the logout flow.
package auth

import (
	"context"

	"github.com/jrsteele09/erp-session/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SessionForgetter tells the identity provider to drop its cached session
// for the user identified by hint (usually an email address).
type SessionForgetter interface {
	ForgetSession(ctx context.Context, hint string) error
}

// Service ties the exchange client, the session state and the identity
// widget together.
type Service struct {
	state     *sessions.State
	exchange  *ExchangeClient
	forgetter SessionForgetter
	logger    zerolog.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService validates its dependencies and returns a Service.
func NewService(state *sessions.State, exchange *ExchangeClient, forgetter SessionForgetter, options ...ServiceOption) (*Service, error) {
	if state == nil {
		return nil, errors.New("[NewService] session state is required")
	}
	if exchange == nil {
		return nil, errors.New("[NewService] exchange client is required")
	}
	if forgetter == nil {
		return nil, errors.New("[NewService] session forgetter is required")
	}
	s := &Service{
		state:     state,
		exchange:  exchange,
		forgetter: forgetter,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// State returns the session state the service writes to
func (s *Service) State() *sessions.State {
	return s.state
}

// Exchange trades rawCredential for a session. See ExchangeClient.Exchange.
func (s *Service) Exchange(ctx context.Context, rawCredential string) (*sessions.Session, error) {
	return s.exchange.Exchange(ctx, rawCredential)
}

// Logout clears the session and then asks the identity provider to forget
// the user. It never fails; a provider error is only logged. The caller
// navigates to the login route afterwards.
func (s *Service) Logout(ctx context.Context) {
	hint := ""
	if user := s.state.CurrentUser(); user != nil {
		hint = user.Email
	}

	s.state.ClearSession(ctx)

	if err := s.forgetter.ForgetSession(ctx, hint); err != nil {
		s.logger.Warn().Err(err).Msg("identity provider did not forget the session")
		return
	}
	s.logger.Info().Msg("logged out")
}
