package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/erp-session/auth"
	"github.com/jrsteele09/erp-session/internal/browser"
	"github.com/jrsteele09/erp-session/internal/config"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/storage"
	"github.com/jrsteele09/erp-session/storage/filestore"
	"github.com/jrsteele09/erp-session/storage/memstore"
	"github.com/jrsteele09/erp-session/storage/sqlitestore"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/jrsteele09/erp-session/widget/google"
	"github.com/rs/zerolog/log"
)

var openBrowser = browser.Open

// app wires the session components for one command
type app struct {
	store      storage.Store
	closeStore func() error
	state      *sessions.State
	provider   *google.Provider // nil when Google could not be reached
	controller *login.Controller
}

// withApp builds the app for a command line operation, runs fn and closes
// the store. Google is only contacted when identity is true.
func withApp(ctx context.Context, cfg config.Config, identity bool, fn func(*app) error) error {
	a, err := newApp(ctx, cfg, cfg.GetGoogleCLIRedirectURL(), identity)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func newApp(ctx context.Context, cfg config.Config, redirectURL string, identity bool) (*app, error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, closeStore: closeStore}

	a.state, err = sessions.New(store,
		sessions.WithLogger(componentLogger("session")),
		sessions.WithExpiryCheck(cfg.GetCheckTokenExpiry()),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.state.Initialize(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("reading stored session: %w", err)
	}

	var w widget.Widget = offlineWidget{cause: fmt.Errorf("identity provider not configured")}
	if identity {
		a.provider, err = newProvider(ctx, cfg, redirectURL)
		if err != nil {
			log.Warn().Err(err).Msg("google sign in unavailable")
			w = offlineWidget{cause: err}
		} else {
			w = a.provider
		}
	}

	httpClient := &http.Client{Timeout: cfg.GetAPITimeout()}
	exchange, err := auth.NewExchangeClient(cfg.GetAPIURL(), a.state,
		auth.WithDoer(httpClient),
		auth.WithExchangeLogger(componentLogger("exchange")),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	service, err := auth.NewService(a.state, exchange, w, auth.WithLogger(componentLogger("auth")))
	if err != nil {
		a.close()
		return nil, err
	}
	a.controller, err = login.NewController(service, w,
		login.WithFallbackMode(cfg.GetFallbackMode()),
		login.WithNoticeBoard(login.NewNoticeBoard(cfg.GetNoticeTTL())),
		login.WithAppName(cfg.GetAppName()),
		login.WithLogger(componentLogger("login")),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.closeStore == nil {
		return
	}
	if err := a.closeStore(); err != nil {
		log.Warn().Err(err).Msg("closing session store")
	}
}

// openStore selects the Persistent Store backend. The closer is never nil.
func openStore(cfg config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.GetStoreDriver() {
	case config.StoreDriverMemory:
		return memstore.New(), noop, nil
	case config.StoreDriverSQLite:
		s, err := sqlitestore.Open(sqlitestore.Config{
			Path:   cfg.GetStorePath(),
			Logger: componentLogger("store"),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreDriverFile:
		s, err := filestore.New(cfg.GetStorePath(), filestore.WithSealingKey(cfg.GetStoreKey()))
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.GetStoreDriver())
	}
}

func newProvider(ctx context.Context, cfg config.Config, redirectURL string) (*google.Provider, error) {
	if cfg.GetGoogleClientID() == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID is not set")
	}
	return google.NewFromDiscovery(ctx, cfg.GetGoogleIssuer(), google.Config{
		ClientID:     cfg.GetGoogleClientID(),
		ClientSecret: cfg.GetGoogleClientSecret(),
		RedirectURL:  redirectURL,
		Scopes:       cfg.GetGoogleScopes(),
		RevokeURL:    cfg.GetGoogleRevokeURL(),
	},
		google.WithHTTPClient(&http.Client{Timeout: cfg.GetAPITimeout()}),
		google.WithURLOpener(func(url string) error { return openBrowser(url) }),
		google.WithLogger(componentLogger("google")),
	)
}

// offlineWidget stands in for Google when it cannot be reached. Sign in
// fails with ErrCredentialUnavailable; logout still clears the session.
type offlineWidget struct {
	cause error
}

func (w offlineWidget) TriggerCredentialFlow(_ context.Context, flow widget.Flow) <-chan widget.Result {
	completion := widget.NewCompletion()
	completion.Resolve(widget.Result{Flow: flow, Err: fmt.Errorf("%w: %v", internalErrors.ErrCredentialUnavailable, w.cause)})
	return completion.C()
}

func (offlineWidget) ForgetSession(context.Context, string) error {
	return nil
}
