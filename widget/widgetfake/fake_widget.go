// Package widgetfake provides a scripted widget.Widget for tests.
package widgetfake

import (
	"context"
	"sync"

	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/widget"
)

var _ widget.Widget = (*FakeWidget)(nil)

// FakeWidget returns scripted results per flow. A flow with nothing scripted
// yields ErrCredentialUnavailable.
type FakeWidget struct {
	mu        sync.Mutex
	scripted  map[widget.Flow][]widget.Result
	triggered []widget.Flow
	forgotten []string
	forgetErr error
	gate      chan struct{}
}

// NewFakeWidget creates a widget with nothing scripted
func NewFakeWidget() *FakeWidget {
	return &FakeWidget{scripted: make(map[widget.Flow][]widget.Result)}
}

// Script queues credentials for flow, returned in order
func (w *FakeWidget) Script(flow widget.Flow, credentials ...string) *FakeWidget {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range credentials {
		w.scripted[flow] = append(w.scripted[flow], widget.Result{Flow: flow, Credential: c})
	}
	return w
}

// ScriptError queues a failing result for flow
func (w *FakeWidget) ScriptError(flow widget.Flow, err error) *FakeWidget {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scripted[flow] = append(w.scripted[flow], widget.Result{Flow: flow, Err: err})
	return w
}

// FailForget makes ForgetSession return err
func (w *FakeWidget) FailForget(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forgetErr = err
}

// Hold delays every result until Release is called
func (w *FakeWidget) Hold() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gate = make(chan struct{})
}

// Release lets held results through
func (w *FakeWidget) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gate != nil {
		close(w.gate)
		w.gate = nil
	}
}

func (w *FakeWidget) TriggerCredentialFlow(ctx context.Context, flow widget.Flow) <-chan widget.Result {
	w.mu.Lock()
	w.triggered = append(w.triggered, flow)
	result := widget.Result{Flow: flow, Err: internalErrors.ErrCredentialUnavailable}
	if queue := w.scripted[flow]; len(queue) > 0 {
		result = queue[0]
		w.scripted[flow] = queue[1:]
	}
	gate := w.gate
	w.mu.Unlock()

	completion := widget.NewCompletion()
	if gate == nil {
		completion.Resolve(result)
		return completion.C()
	}
	go func() {
		select {
		case <-gate:
			completion.Resolve(result)
		case <-ctx.Done():
			completion.Resolve(widget.Result{Flow: flow, Err: ctx.Err()})
		}
	}()
	return completion.C()
}

func (w *FakeWidget) ForgetSession(_ context.Context, hint string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forgotten = append(w.forgotten, hint)
	return w.forgetErr
}

// Triggered returns the flows started so far
func (w *FakeWidget) Triggered() []widget.Flow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]widget.Flow(nil), w.triggered...)
}

// Forgotten returns the hints passed to ForgetSession
func (w *FakeWidget) Forgotten() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.forgotten...)
}
