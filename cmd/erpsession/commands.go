package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/internal/config"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/server"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/token"
	"github.com/jrsteele09/erp-session/users"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

func runServe(ctx context.Context, cfg config.Config) error {
	displayAppname(cfg.GetAppName())

	a, err := newApp(ctx, cfg, cfg.GetGoogleRedirectURL(), true)
	if err != nil {
		return err
	}
	defer a.close()
	if a.provider == nil {
		return fmt.Errorf("the front end needs google sign in: set GOOGLE_CLIENT_ID")
	}

	handler, err := server.New(cfg, a.state, a.controller, a.provider)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("base_url", cfg.GetBaseURL()).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("server.ListenAndServe: %w", err)
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	return shutdown(httpServer)
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func runLogin(ctx context.Context, out io.Writer, a *app, returnURL string) error {
	if a.state.IsAuthenticated(ctx) {
		fmt.Fprintf(out, "Already signed in as %s.\n", describeUser(a.state.CurrentUser()))
		return nil
	}

	fmt.Fprintln(out, "Opening your browser to sign in with Google...")
	outcome, err := a.controller.Login(ctx, returnURL)
	if err != nil {
		if notice, ok := a.controller.Notices().Current(); ok {
			fmt.Fprintln(out, notice.Text)
		}
		return err
	}
	if notice, ok := a.controller.Notices().Current(); ok {
		fmt.Fprintln(out, notice.Text)
	}
	fmt.Fprintf(out, "Next: %s\n", outcome.Redirect)
	return nil
}

// runLogout always clears the record, even when the session no longer
// counts as signed in (expired token, changed by another process).
func runLogout(ctx context.Context, out io.Writer, a *app) error {
	signedIn := a.state.IsAuthenticated(ctx)
	destination := a.controller.Logout(ctx)
	if !signedIn {
		fmt.Fprintln(out, "Already signed out.")
		return nil
	}
	fmt.Fprintln(out, login.MsgSignedOut)
	fmt.Fprintf(out, "Next: %s\n", destination)
	return nil
}

func runStatus(ctx context.Context, out io.Writer, state *sessions.State) error {
	if !state.IsAuthenticated(ctx) {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}
	user := state.CurrentUser()
	fmt.Fprintf(out, "Signed in as %s\n", describeUser(user))
	if roles := roleNames(user); roles != "" {
		fmt.Fprintf(out, "Roles: %s\n", roles)
	}

	raw := state.Token()
	info := token.Inspect(raw)
	fmt.Fprintf(out, "Token: %s, %d chars", info.Kind, info.Length)
	if !info.ExpiresAt.IsZero() {
		fmt.Fprintf(out, ", expires %s", info.ExpiresAt.Format(time.RFC3339))
		if token.IsExpired(raw) {
			fmt.Fprint(out, " (expired)")
		}
	}
	fmt.Fprintln(out)
	return nil
}

// runOpen applies the route table to path and opens the resulting page.
// A nil opener prints the URL instead.
func runOpen(ctx context.Context, out io.Writer, state *sessions.State, baseURL, path string, opener func(string) error) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	decision := guard.New(state).Resolve(ctx, path)

	target := path
	if decision.Allow {
		fmt.Fprintf(out, "%s: allowed\n", path)
	} else {
		target = decision.Redirect
		fmt.Fprintf(out, "%s: redirected to %s\n", path, target)
	}

	pageURL := strings.TrimRight(baseURL, "/") + target
	if opener == nil {
		fmt.Fprintln(out, pageURL)
		return nil
	}
	if err := opener(pageURL); err != nil {
		return fmt.Errorf("opening %s: %w", pageURL, err)
	}
	return nil
}

func describeUser(user *users.Profile) string {
	if user == nil {
		return "unknown user"
	}
	if name := user.FullName(); name != "" {
		return fmt.Sprintf("%s <%s>", name, user.Email)
	}
	return user.Email
}

func roleNames(user *users.Profile) string {
	var roles []string
	for _, role := range []users.RoleType{users.RoleAdmin, users.RoleStaff} {
		if user.HasRole(role) {
			roles = append(roles, string(role))
		}
	}
	return strings.Join(roles, ", ")
}
