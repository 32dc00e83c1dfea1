// Package login glues the identity widget to the exchange client. It owns
// the in-flight flag, the fallback from the one-shot to the interactive
// credential flow, the transient notices and the post-login destination.
package login

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/erp-session/auth"
	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/internal/config"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Service is what the controller needs from auth.Service
type Service interface {
	Exchange(ctx context.Context, rawCredential string) (*sessions.Session, error)
	Logout(ctx context.Context)
}

var _ Service = (*auth.Service)(nil)

// Attempt identifies an exchange in flight
type Attempt struct {
	ID        uuid.UUID
	Flow      widget.Flow
	StartedAt time.Time
}

// Outcome is the result of a successful sign in
type Outcome struct {
	Attempt  Attempt
	Session  *sessions.Session
	Redirect string // Where to navigate next
}

// FallbackError reports that a one-shot credential could not be used and
// the interactive flow may be tried. Automatic is set when the caller should
// start it without asking the user.
type FallbackError struct {
	Cause     error
	Automatic bool
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s: %v", internalErrors.ErrFallbackAvailable, e.Cause)
}

func (e *FallbackError) Unwrap() []error {
	return []error{internalErrors.ErrFallbackAvailable, e.Cause}
}

// Controller runs sign in attempts. At most one attempt is in flight; a
// second one fails with ErrLoginInProgress without aborting the first.
type Controller struct {
	service Service
	widget  widget.Widget
	mode    config.FallbackMode
	notices *NoticeBoard
	appName string
	logger  zerolog.Logger
	nowTime func() time.Time

	pending atomic.Pointer[Attempt]
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithFallbackMode sets the fallback policy. The default is automatic.
func WithFallbackMode(mode config.FallbackMode) ControllerOption {
	return func(c *Controller) {
		c.mode = mode
	}
}

// WithNoticeBoard replaces the default board
func WithNoticeBoard(board *NoticeBoard) ControllerOption {
	return func(c *Controller) {
		if board != nil {
			c.notices = board
		}
	}
}

// WithAppName is used in the welcome notice
func WithAppName(name string) ControllerOption {
	return func(c *Controller) {
		c.appName = name
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

// NewController validates its dependencies and returns a Controller.
func NewController(service Service, w widget.Widget, options ...ControllerOption) (*Controller, error) {
	if service == nil {
		return nil, errors.New("[NewController] service is required")
	}
	if w == nil {
		return nil, errors.New("[NewController] widget is required")
	}
	c := &Controller{
		service: service,
		widget:  w,
		mode:    config.FallbackAutomatic,
		notices: NewNoticeBoard(DefaultNoticeTTL),
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Notices returns the board the controller posts to
func (c *Controller) Notices() *NoticeBoard {
	return c.notices
}

// FallbackMode returns the configured policy
func (c *Controller) FallbackMode() config.FallbackMode {
	return c.mode
}

// Pending returns the attempt in flight, if any
func (c *Controller) Pending() (Attempt, bool) {
	if a := c.pending.Load(); a != nil {
		return *a, true
	}
	return Attempt{}, false
}

// Busy reports whether an attempt is in flight
func (c *Controller) Busy() bool {
	return c.pending.Load() != nil
}

// Submit exchanges a credential obtained outside the controller, such as
// one posted by the browser sign in button.
func (c *Controller) Submit(ctx context.Context, flow widget.Flow, credential, returnURL string) (*Outcome, error) {
	return c.SubmitResult(ctx, widget.Result{Flow: flow, Credential: credential}, returnURL)
}

// SubmitResult is Submit for a widget result delivered outside the
// controller, such as a redirect callback. A failed result goes through the
// fallback policy without reaching the backend.
func (c *Controller) SubmitResult(ctx context.Context, result widget.Result, returnURL string) (*Outcome, error) {
	attempt, err := c.begin(result.Flow)
	if err != nil {
		return nil, err
	}
	defer c.end()

	if result.Err != nil {
		return nil, c.failed(result.Flow, credentialUnavailable(result.Err))
	}
	outcome, err := c.exchange(ctx, attempt, result.Credential, returnURL)
	if err != nil {
		return nil, c.failed(result.Flow, err)
	}
	return outcome, nil
}

// Login acquires a one-shot credential from the widget and exchanges it.
// When that fails the fallback policy decides whether the interactive flow
// runs straight away, is left to the caller or is not offered.
func (c *Controller) Login(ctx context.Context, returnURL string) (*Outcome, error) {
	attempt, err := c.begin(widget.FlowOneShot)
	if err != nil {
		return nil, err
	}
	defer c.end()

	outcome, err := c.acquireAndExchange(ctx, attempt, returnURL)
	if err == nil {
		return outcome, nil
	}
	err = c.failed(widget.FlowOneShot, err)

	var fallback *FallbackError
	if !errors.As(err, &fallback) || !fallback.Automatic {
		return nil, err
	}

	c.logger.Info().Err(fallback.Cause).Msg("one-shot credential rejected, starting interactive flow")
	interactive := c.restart(attempt, widget.FlowInteractive)
	outcome, err = c.acquireAndExchange(ctx, interactive, returnURL)
	if err != nil {
		return nil, c.failed(widget.FlowInteractive, err)
	}
	return outcome, nil
}

// LoginInteractive runs only the interactive flow
func (c *Controller) LoginInteractive(ctx context.Context, returnURL string) (*Outcome, error) {
	attempt, err := c.begin(widget.FlowInteractive)
	if err != nil {
		return nil, err
	}
	defer c.end()

	outcome, err := c.acquireAndExchange(ctx, attempt, returnURL)
	if err != nil {
		return nil, c.failed(widget.FlowInteractive, err)
	}
	return outcome, nil
}

// Logout signs out and returns the route to navigate to
func (c *Controller) Logout(ctx context.Context) string {
	c.service.Logout(ctx)
	c.notices.Show(NoticeInfo, MsgSignedOut)
	return guard.LoginRoute
}

func (c *Controller) begin(flow widget.Flow) (Attempt, error) {
	attempt := &Attempt{ID: uuid.New(), Flow: flow, StartedAt: c.nowTime()}
	if !c.pending.CompareAndSwap(nil, attempt) {
		c.logger.Debug().Str("flow", string(flow)).Msg("sign in rejected, another attempt is in flight")
		return Attempt{}, internalErrors.ErrLoginInProgress
	}
	c.notices.Dismiss()
	return *attempt, nil
}

func (c *Controller) restart(prev Attempt, flow widget.Flow) Attempt {
	next := &Attempt{ID: prev.ID, Flow: flow, StartedAt: c.nowTime()}
	c.pending.Store(next)
	return *next
}

func (c *Controller) end() {
	c.pending.Store(nil)
}

func (c *Controller) acquireAndExchange(ctx context.Context, attempt Attempt, returnURL string) (*Outcome, error) {
	result := widget.Await(ctx, attempt.Flow, c.widget.TriggerCredentialFlow(ctx, attempt.Flow))
	if result.Err != nil {
		if ctx.Err() != nil {
			return nil, result.Err
		}
		return nil, credentialUnavailable(result.Err)
	}
	return c.exchange(ctx, attempt, result.Credential, returnURL)
}

func (c *Controller) exchange(ctx context.Context, attempt Attempt, credential, returnURL string) (*Outcome, error) {
	session, err := c.service.Exchange(ctx, credential)
	if err != nil {
		return nil, err
	}

	c.notices.Show(NoticeSuccess, WelcomeMessage(c.appName, session.User))
	c.logger.Info().
		Str("attempt", attempt.ID.String()).
		Str("flow", string(attempt.Flow)).
		Dur("elapsed", c.nowTime().Sub(attempt.StartedAt)).
		Msg("signed in")

	return &Outcome{
		Attempt:  attempt,
		Session:  session,
		Redirect: guard.ReturnDestination(returnURL),
	}, nil
}

// failed applies the fallback policy to a failed attempt and posts the
// notice. An automatic fallback posts nothing; the interactive flow follows.
func (c *Controller) failed(flow widget.Flow, err error) error {
	if flow == widget.FlowOneShot && fallbackEligible(err) {
		switch c.mode {
		case config.FallbackAutomatic:
			c.logger.Debug().Err(err).Msg("one-shot credential rejected, interactive flow required")
			return &FallbackError{Cause: err, Automatic: true}
		case config.FallbackManual:
			fallback := &FallbackError{Cause: err}
			c.notices.Show(NoticeInfo, UserMessage(fallback))
			return fallback
		}
	}

	c.logger.Warn().Err(err).Str("flow", string(flow)).Msg("sign in failed")
	c.notices.Show(NoticeError, UserMessage(err))
	return err
}

func credentialUnavailable(err error) error {
	if internalErrors.Is(err, internalErrors.ErrCredentialUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", internalErrors.ErrCredentialUnavailable, err)
}

// fallbackEligible is true for failures another credential format could
// fix: no credential at all, or the backend refusing the credential itself.
func fallbackEligible(err error) bool {
	if internalErrors.Is(err, internalErrors.ErrCredentialUnavailable) {
		return true
	}
	if rejected, ok := auth.IsRejected(err); ok {
		return rejected.StatusCode == http.StatusBadRequest || rejected.StatusCode == http.StatusUnauthorized
	}
	return false
}
