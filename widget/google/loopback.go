package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/widget"
)

const callbackHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Signed in</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4em">
<p>You can close this window and return to the terminal.</p>
</body></html>`

// TriggerCredentialFlow runs the flow through a short lived callback server
// on the loopback redirect URL and the user's browser. It is meant for the
// command line; the web front end uses Begin and Complete instead.
func (p *Provider) TriggerCredentialFlow(ctx context.Context, flow widget.Flow) <-chan widget.Result {
	completion := widget.NewCompletion()
	go p.runLoopback(ctx, flow, completion)
	return completion.C()
}

func (p *Provider) runLoopback(ctx context.Context, flow widget.Flow, completion *widget.Completion) {
	fail := func(err error) {
		completion.Resolve(widget.Result{Flow: flow, Err: err})
	}

	redirect, err := url.Parse(p.oauth.RedirectURL)
	if err != nil || redirect.Host == "" {
		fail(fmt.Errorf("%w: invalid redirect url %q", internalErrors.ErrCredentialUnavailable, p.oauth.RedirectURL))
		return
	}
	if !isLoopback(redirect.Hostname()) {
		fail(fmt.Errorf("%w: redirect url %s is not a loopback address", internalErrors.ErrUnsupported, redirect))
		return
	}
	addr := redirect.Host
	if redirect.Port() == "" {
		addr = net.JoinHostPort(redirect.Hostname(), "0")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fail(fmt.Errorf("start callback listener: %w", err))
		return
	}
	defer listener.Close() //nolint:errcheck

	redirect.Host = listener.Addr().String()
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	authURL, expectedState, err := p.begin(flow, "", redirect.String())
	if err != nil {
		fail(err)
		return
	}

	results := make(chan widget.Result, 1)
	deliver := func(r widget.Result) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != expectedState {
			http.Error(w, "invalid state", http.StatusForbidden)
			return
		}
		if errParam := query.Get("error"); errParam != "" {
			if _, err := p.flows.Take(expectedState); err != nil {
				p.logger.Debug().Err(err).Msg("declined flow already gone")
			}
			http.Error(w, "sign in was cancelled", http.StatusBadRequest)
			deliver(widget.Result{Flow: flow, Err: fmt.Errorf("%w: %s", internalErrors.ErrCredentialUnavailable, errParam)})
			return
		}

		result, _, err := p.Complete(r.Context(), expectedState, query.Get("code"))
		if err != nil {
			http.Error(w, "sign in failed", http.StatusBadRequest)
			deliver(widget.Result{Flow: flow, Err: err})
			return
		}
		if result.Err != nil {
			http.Error(w, "sign in failed", http.StatusBadGateway)
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, callbackHTML) //nolint:errcheck
		}
		deliver(result)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx) //nolint:errcheck
	}()

	if err := p.openURL(authURL); err != nil {
		p.logger.Warn().Err(err).Str("url", authURL).Msg("could not open browser, visit the url to sign in")
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case result := <-results:
		completion.Resolve(result)
	case err := <-serveErr:
		fail(fmt.Errorf("callback server: %w", err))
	case <-timer.C:
		fail(fmt.Errorf("%w: no callback within %s", internalErrors.ErrCredentialUnavailable, p.timeout))
	case <-ctx.Done():
		fail(ctx.Err())
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
