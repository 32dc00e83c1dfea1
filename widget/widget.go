// Package widget models the identity provider widget: something that can
// produce a raw credential for the exchange endpoint and can be told to
// forget the identity session on logout.
package widget

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Flow selects how a credential is acquired
type Flow string

const (
	// FlowOneShot yields a signed ID token without an account chooser when
	// the provider already knows the user.
	FlowOneShot Flow = "one_shot"
	// FlowInteractive asks the user for consent and yields an access token.
	FlowInteractive Flow = "interactive"
)

// ParseFlow accepts the names used in URLs and flags. An empty string is the
// one-shot flow.
func ParseFlow(s string) (Flow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FlowOneShot), "oneshot", "id_token":
		return FlowOneShot, nil
	case string(FlowInteractive), "token", "access_token":
		return FlowInteractive, nil
	default:
		return "", fmt.Errorf("unknown credential flow %q", s)
	}
}

// Result is the single value delivered for a TriggerCredentialFlow call.
type Result struct {
	Flow       Flow
	Credential string
	Err        error
}

// Widget is the identity provider capability the login flow depends on.
type Widget interface {
	// TriggerCredentialFlow starts acquiring a credential. The returned
	// channel receives exactly one Result and is then closed.
	TriggerCredentialFlow(ctx context.Context, flow Flow) <-chan Result

	// ForgetSession asks the provider to drop any cached identity for hint.
	ForgetSession(ctx context.Context, hint string) error
}

// Completion delivers one Result on a buffered channel. Only the first call
// to Resolve has an effect.
type Completion struct {
	ch   chan Result
	once sync.Once
}

// NewCompletion creates an unresolved Completion
func NewCompletion() *Completion {
	return &Completion{ch: make(chan Result, 1)}
}

// C returns the channel the Result is delivered on
func (c *Completion) C() <-chan Result {
	return c.ch
}

// Resolve delivers r and closes the channel. It reports whether this call
// was the one that resolved the completion.
func (c *Completion) Resolve(r Result) bool {
	resolved := false
	c.once.Do(func() {
		c.ch <- r
		close(c.ch)
		resolved = true
	})
	return resolved
}

// Await waits for the Result on ch or for ctx to end.
func Await(ctx context.Context, flow Flow, ch <-chan Result) Result {
	select {
	case r, ok := <-ch:
		if !ok {
			return Result{Flow: flow, Err: fmt.Errorf("credential flow %s ended without a result", flow)}
		}
		return r
	case <-ctx.Done():
		return Result{Flow: flow, Err: ctx.Err()}
	}
}
