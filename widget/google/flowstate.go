package google

import (
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/erp-session/widget"
)

// FlowState is what the provider remembers between sending the browser to
// the authorization endpoint and receiving the callback.
type FlowState struct {
	Flow         widget.Flow
	CodeVerifier string
	Nonce        string
	RedirectURL  string
	ReturnURL    string
	CreatedAt    time.Time
}

// FlowRepo stores pending flows keyed by the OAuth2 state parameter.
type FlowRepo interface {
	Upsert(state string, flow *FlowState) error
	// Take returns and removes the flow so a state value is usable once
	Take(state string) (*FlowState, error)
}

var (
	ErrStateNotFound = errors.New("state not found")
	ErrStateExpired  = errors.New("state expired")
)

// InMemoryFlowRepo is a thread-safe FlowRepo dropping flows older than ttl.
type InMemoryFlowRepo struct {
	mu     sync.Mutex
	states map[string]*FlowState
	ttl    time.Duration
	now    func() time.Time
}

// NewInMemoryFlowRepo creates an empty repo. A ttl of 0 keeps flows forever.
func NewInMemoryFlowRepo(ttl time.Duration) *InMemoryFlowRepo {
	return &InMemoryFlowRepo{
		states: make(map[string]*FlowState),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *InMemoryFlowRepo) Upsert(state string, flow *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	copied := *flow
	r.states[state] = &copied
	return nil
}

func (r *InMemoryFlowRepo) Take(state string) (*FlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.states[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(r.states, state)
	if r.expired(flow) {
		return nil, ErrStateExpired
	}
	copied := *flow
	return &copied, nil
}

// Len returns the number of pending flows
func (r *InMemoryFlowRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *InMemoryFlowRepo) expired(flow *FlowState) bool {
	return r.ttl > 0 && r.now().Sub(flow.CreatedAt) > r.ttl
}

func (r *InMemoryFlowRepo) prune() {
	for state, flow := range r.states {
		if r.expired(flow) {
			delete(r.states, state)
		}
	}
}
