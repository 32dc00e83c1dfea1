// Package google implements widget.Widget against Google's OAuth2 and
// OpenID Connect endpoints. The one-shot flow yields a verified ID token and
// the interactive flow an access token; both use the authorization code flow
// with PKCE.
package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/erp-session/internal/browser"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ widget.Widget = (*Provider)(nil)

const (
	DefaultIssuer    = "https://accounts.google.com"
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	flowTTL                = 10 * time.Minute
	defaultLoopbackTimeout = 2 * time.Minute
)

// IDTokenVerifier checks an ID token's signature and claims.
// *oidc.IDTokenVerifier satisfies it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Config holds the client registration
type Config struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	Scopes          []string
	Endpoint        oauth2.Endpoint
	RevokeURL       string
	LoopbackTimeout time.Duration
}

// Identity is the verified subject of an ID token
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Provider is the Google identity widget.
type Provider struct {
	oauth      oauth2.Config
	verifier   IDTokenVerifier
	flows      FlowRepo
	revokeURL  string
	httpClient *http.Client
	openURL    func(string) error
	timeout    time.Duration
	logger     zerolog.Logger
	nowTime    func() time.Time

	mu         sync.Mutex
	issued     map[string]string // email -> access token, for revocation
	lastHint   string
	autoSelect bool
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithHTTPClient is used for the token and revocation endpoints
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithURLOpener replaces the browser launcher used by the loopback flow
func WithURLOpener(open func(string) error) ProviderOption {
	return func(p *Provider) {
		p.openURL = open
	}
}

// WithFlowRepo replaces the in-memory pending flow store
func WithFlowRepo(repo FlowRepo) ProviderOption {
	return func(p *Provider) {
		p.flows = repo
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// New creates a provider using verifier for ID tokens.
func New(cfg Config, verifier IDTokenVerifier, options ...ProviderOption) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("[google.New] client id is required")
	}
	if cfg.Endpoint.AuthURL == "" || cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("[google.New] authorization and token endpoints are required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("[google.New] id token verifier is required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = DefaultRevokeURL
	}
	timeout := cfg.LoopbackTimeout
	if timeout <= 0 {
		timeout = defaultLoopbackTimeout
	}

	p := &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     cfg.Endpoint,
		},
		verifier:   verifier,
		flows:      NewInMemoryFlowRepo(flowTTL),
		revokeURL:  revokeURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		openURL:    browser.Open,
		timeout:    timeout,
		logger:     zerolog.Nop(),
		nowTime:    time.Now,
		issued:     make(map[string]string),
		autoSelect: true,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// NewFromDiscovery reads the endpoints and signing keys from the issuer's
// discovery document.
func NewFromDiscovery(ctx context.Context, issuer string, cfg Config, options ...ProviderOption) (*Provider, error) {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("[google.NewFromDiscovery] discovering %s: %w", issuer, err)
	}
	cfg.Endpoint = oidcProvider.Endpoint()
	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return New(cfg, verifier, options...)
}

// ClientID returns the registered client id
func (p *Provider) ClientID() string {
	return p.oauth.ClientID
}

// Begin records a pending flow and returns the authorization URL to send the
// browser to, plus the state value identifying the flow.
func (p *Provider) Begin(flow widget.Flow, returnURL string) (authURL string, state string, err error) {
	return p.begin(flow, returnURL, p.oauth.RedirectURL)
}

func (p *Provider) begin(flow widget.Flow, returnURL, redirectURL string) (string, string, error) {
	if redirectURL == "" {
		return "", "", fmt.Errorf("[google.Begin] redirect url is not configured")
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	err := p.flows.Upsert(state, &FlowState{
		Flow:         flow,
		CodeVerifier: verifier,
		Nonce:        nonce,
		RedirectURL:  redirectURL,
		ReturnURL:    returnURL,
		CreatedAt:    p.nowTime(),
	})
	if err != nil {
		return "", "", fmt.Errorf("[google.Begin] storing flow: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
		oauth2.AccessTypeOnline,
	}
	p.mu.Lock()
	switch {
	case !p.autoSelect:
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	case flow == widget.FlowInteractive:
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	if p.autoSelect && p.lastHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", p.lastHint))
	}
	p.mu.Unlock()

	cfg := p.oauth
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state, opts...), state, nil
}

// Complete finishes the flow identified by state. It returns the credential
// for the flow that was started and the return URL recorded by Begin.
func (p *Provider) Complete(ctx context.Context, state, code string) (widget.Result, string, error) {
	flowState, err := p.flows.Take(state)
	if err != nil {
		return widget.Result{}, "", fmt.Errorf("[google.Complete] %w", err)
	}
	result := widget.Result{Flow: flowState.Flow}
	if code == "" {
		result.Err = fmt.Errorf("%w: authorization code missing", internalErrors.ErrCredentialUnavailable)
		return result, flowState.ReturnURL, nil
	}

	cfg := p.oauth
	cfg.RedirectURL = flowState.RedirectURL
	tok, err := cfg.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(flowState.CodeVerifier))
	if err != nil {
		result.Err = fmt.Errorf("%w: token exchange: %v", internalErrors.ErrCredentialUnavailable, err)
		return result, flowState.ReturnURL, nil
	}

	var identity *Identity
	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken != "" {
		identity, err = p.verify(ctx, rawIDToken, flowState.Nonce)
		if err != nil {
			result.Err = fmt.Errorf("%w: %v", internalErrors.ErrCredentialUnavailable, err)
			return result, flowState.ReturnURL, nil
		}
	}

	switch flowState.Flow {
	case widget.FlowOneShot:
		if rawIDToken == "" {
			result.Err = fmt.Errorf("%w: no id token in response", internalErrors.ErrCredentialUnavailable)
			return result, flowState.ReturnURL, nil
		}
		result.Credential = rawIDToken
	default:
		if tok.AccessToken == "" {
			result.Err = fmt.Errorf("%w: no access token in response", internalErrors.ErrCredentialUnavailable)
			return result, flowState.ReturnURL, nil
		}
		result.Credential = tok.AccessToken
	}

	if identity != nil && identity.Email != "" {
		p.remember(identity.Email, tok.AccessToken)
	}
	p.logger.Debug().Str("flow", string(flowState.Flow)).Msg("google credential obtained")
	return result, flowState.ReturnURL, nil
}

// VerifyCredential checks an ID token posted by the browser sign-in button.
func (p *Provider) VerifyCredential(ctx context.Context, rawIDToken string) (*Identity, error) {
	identity, err := p.verify(ctx, rawIDToken, "")
	if err != nil {
		return nil, err
	}
	p.remember(identity.Email, "")
	return identity, nil
}

func (p *Provider) verify(ctx context.Context, rawIDToken, nonce string) (*Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("id token verification failed: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return nil, fmt.Errorf("id token nonce mismatch")
	}
	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return nil, fmt.Errorf("reading id token claims: %w", err)
	}
	return &identity, nil
}

func (p *Provider) remember(email, accessToken string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if accessToken != "" {
		p.issued[email] = accessToken
	}
	p.lastHint = email
	p.autoSelect = true
}

// ForgetSession revokes the access token issued for hint, if any, and stops
// preselecting the account on the next sign in.
func (p *Provider) ForgetSession(ctx context.Context, hint string) error {
	hint = strings.ToLower(strings.TrimSpace(hint))

	p.mu.Lock()
	accessToken := p.issued[hint]
	delete(p.issued, hint)
	p.autoSelect = false
	p.lastHint = ""
	p.mu.Unlock()

	if accessToken == "" {
		return nil
	}

	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("[google.ForgetSession] creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[google.ForgetSession] revoking: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16)) //nolint:errcheck
		return fmt.Errorf("[google.ForgetSession] revoke returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	p.logger.Debug().Msg("google access token revoked")
	return nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
