package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/internal/utils"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/token"
	"github.com/jrsteele09/erp-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ExchangePath is the backend endpoint, relative to the API base URL
const ExchangePath = "/auth/google/"

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionSetter receives the session produced by a successful exchange.
// *sessions.State satisfies it.
type SessionSetter interface {
	SetSession(ctx context.Context, token string, user *users.Profile) error
}

type exchangeRequest struct {
	AccessToken string `json:"access_token"`
}

type exchangeResponse struct {
	Key  string         `json:"key"`
	User *users.Profile `json:"user"`
}

// ExchangeClient trades an identity provider credential for an application
// session. Each call to Exchange makes exactly one request and never retries.
type ExchangeClient struct {
	apiBase  string
	doer     Doer
	sessions SessionSetter
	logger   zerolog.Logger
}

// ExchangeOption configures an ExchangeClient
type ExchangeOption func(*ExchangeClient)

// WithDoer replaces the default HTTP client
func WithDoer(doer Doer) ExchangeOption {
	return func(c *ExchangeClient) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithExchangeLogger sets the logger. The default discards everything.
func WithExchangeLogger(logger zerolog.Logger) ExchangeOption {
	return func(c *ExchangeClient) {
		c.logger = logger
	}
}

// NewExchangeClient creates a client posting to apiBase + ExchangePath.
func NewExchangeClient(apiBase string, sessionSetter SessionSetter, options ...ExchangeOption) (*ExchangeClient, error) {
	if strings.TrimSpace(apiBase) == "" {
		return nil, errors.New("[NewExchangeClient] apiBase is required")
	}
	if sessionSetter == nil {
		return nil, errors.New("[NewExchangeClient] session setter is required")
	}
	c := &ExchangeClient{
		apiBase:  strings.TrimRight(apiBase, "/"),
		doer:     &http.Client{Timeout: defaultTimeout},
		sessions: sessionSetter,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the full exchange URL
func (c *ExchangeClient) Endpoint() string {
	return c.apiBase + ExchangePath
}

// Exchange posts rawCredential to the backend and stores the returned
// session. On any failure the current session is left as it was.
func (c *ExchangeClient) Exchange(ctx context.Context, rawCredential string) (*sessions.Session, error) {
	if strings.TrimSpace(rawCredential) == "" {
		return nil, internalErrors.ErrEmptyCredential
	}

	info := token.Inspect(rawCredential)
	c.logger.Debug().
		Str("kind", string(info.Kind)).
		Int("length", info.Length).
		Str("preview", utils.Preview(rawCredential, 8)).
		Msg("exchanging credential")

	body, err := json.Marshal(exchangeRequest{AccessToken: rawCredential})
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange] encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[Exchange] creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("exchange request failed")
		return nil, &ExchangeRejectedError{StatusCode: 0, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &ExchangeRejectedError{StatusCode: 0, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &ExchangeRejectedError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		c.logger.Warn().Int("status", resp.StatusCode).Str("category", rejected.Category().String()).Msg("exchange rejected")
		return nil, rejected
	}

	var out exchangeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Wrapf(internalErrors.ErrMalformedAuthResponse, "[Exchange] decoding body: %s", err.Error())
	}
	if strings.TrimSpace(out.Key) == "" {
		return nil, errors.Wrap(internalErrors.ErrMalformedAuthResponse, "[Exchange] key missing")
	}
	if out.User == nil {
		return nil, errors.Wrap(internalErrors.ErrMalformedAuthResponse, "[Exchange] user missing")
	}
	if err := out.User.Validate(); err != nil {
		return nil, errors.Wrapf(internalErrors.ErrMalformedAuthResponse, "[Exchange] user: %s", err.Error())
	}

	if err := c.sessions.SetSession(ctx, out.Key, out.User); err != nil {
		return nil, errors.Wrap(err, "[Exchange] storing session")
	}

	c.logger.Info().Int64("user_id", out.User.ID).Msg("credential exchanged")
	return &sessions.Session{Token: out.Key, User: out.User.Clone()}, nil
}

// errorMessage pulls a human readable message from an error body. The
// backend answers with {"error": "..."}; framework errors use "detail".
func errorMessage(body []byte) string {
	var apiErr struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		switch v := apiErr.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return ""
	}
	return strings.TrimSpace(utils.Preview(string(body), 200))
}
