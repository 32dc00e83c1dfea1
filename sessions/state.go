// Package sessions holds the in-memory session and mirrors it into a
// storage.Store. State is the only writer of the persisted record.
package sessions

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/internal/utils"
	"github.com/jrsteele09/erp-session/storage"
	"github.com/jrsteele09/erp-session/token"
	"github.com/jrsteele09/erp-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is an observable holder of the current Session. It is safe for
// concurrent use; mutations are serialized.
type State struct {
	mu          sync.RWMutex
	store       storage.Store
	session     Session
	initialized bool
	mutated     bool

	checkExpiry bool
	logger      zerolog.Logger

	subsMu      sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// StateOption configures a State
type StateOption func(*State)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

// WithExpiryCheck makes IsAuthenticated reject JWT session tokens whose exp
// claim has passed.
func WithExpiryCheck(enabled bool) StateOption {
	return func(s *State) {
		s.checkExpiry = enabled
	}
}

// New creates an empty, uninitialized State backed by store.
func New(store storage.Store, options ...StateOption) (*State, error) {
	if store == nil {
		return nil, errors.New("[sessions.New] store is required")
	}
	s := &State{
		store:       store,
		logger:      zerolog.Nop(),
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Initialize loads the persisted record. A complete record populates the
// session; a partial or corrupted one is cleared. Once the State has been
// initialized or mutated further calls do nothing. Only a failing store read
// is returned as an error.
func (s *State) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized || s.mutated {
		s.initialized = true
		s.mu.Unlock()
		return nil
	}

	session, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "[Initialize] reading session record")
	}
	s.session = session
	s.initialized = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if !session.IsZero() {
		s.logger.Debug().Int64("user_id", session.User.ID).Msg("session restored from store")
	}
	s.notify(snap)
	return nil
}

// Initialized reports whether Initialize has completed or the session has
// been set or cleared since construction.
func (s *State) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized || s.mutated
}

// SetSession replaces the session. The record is written to the store before
// memory changes; if either validation or the write fails the previous
// session is kept.
func (s *State) SetSession(ctx context.Context, sessionToken string, user *users.Profile) error {
	if strings.TrimSpace(sessionToken) == "" {
		return errors.Wrap(internalErrors.ErrInvalidSessionData, "[SetSession] token is empty")
	}
	if err := user.Validate(); err != nil {
		return errors.Wrapf(internalErrors.ErrInvalidSessionData, "[SetSession] %s", err.Error())
	}

	user = user.Clone()
	userData, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[SetSession] encoding user")
	}

	s.mu.Lock()
	err = s.store.SetAll(ctx, map[string]string{
		storage.KeyAuthToken: sessionToken,
		storage.KeyUserData:  string(userData),
	})
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "[SetSession] writing session record")
	}
	s.session = Session{Token: sessionToken, User: user}
	s.mutated = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Int64("user_id", user.ID).Str("token", utils.Preview(sessionToken, 4)).Msg("session set")
	s.notify(snap)
	return nil
}

// ClearSession empties the session and removes the record. Store failures
// are logged; memory is always cleared.
func (s *State) ClearSession(ctx context.Context) {
	s.mu.Lock()
	hadSession := !s.session.IsZero()
	s.session = Session{}
	s.mutated = true
	if err := s.store.Delete(ctx, storage.RecordKeys...); err != nil {
		s.logger.Error().Err(err).Msg("failed to delete session record")
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if hadSession {
		s.logger.Info().Msg("session cleared")
		s.notify(snap)
	}
}

// IsAuthenticated is true when memory holds a token equal to the one in the
// store. A store error, a missing record or a different stored token all
// count as unauthenticated.
func (s *State) IsAuthenticated(ctx context.Context) bool {
	s.mu.RLock()
	memToken := s.session.Token
	s.mu.RUnlock()

	if memToken == "" {
		return false
	}
	stored, ok, err := s.store.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("session store unreadable, treating as signed out")
		return false
	}
	if !ok || stored != memToken {
		return false
	}
	if s.checkExpiry && token.IsExpired(memToken) {
		return false
	}
	return true
}

// CurrentUser returns a copy of the signed in user, or nil.
func (s *State) CurrentUser() *users.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.User.Clone()
}

// Token returns the in-memory session token
func (s *State) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Snapshot returns the current view
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every mutation. fn runs on the
// mutating goroutine after the state lock is released.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

// Reconcile drops an in-memory session the store no longer carries, then
// loads whatever record the store now holds as at startup. It returns true
// when a mismatch was found.
func (s *State) Reconcile(ctx context.Context) bool {
	s.mu.Lock()
	if s.session.IsZero() {
		s.mu.Unlock()
		return false
	}
	stored, ok, err := s.store.Get(ctx, storage.KeyAuthToken)
	if err != nil && !internalErrors.Is(err, internalErrors.ErrStorageCorrupted) {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("session store unreadable during reconcile")
		return false
	}
	if err == nil && ok && stored == s.session.Token {
		s.mu.Unlock()
		return false
	}

	reloaded, err := s.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to reload session record")
		reloaded = Session{}
	}
	s.session = reloaded
	s.mutated = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Bool("replaced", !reloaded.IsZero()).Msg("stale session dropped")
	s.notify(snap)
	return true
}

// load reads the record. Partial or corrupt records are deleted and reported
// as an empty session. Must be called with mu held.
func (s *State) load(ctx context.Context) (Session, error) {
	sessionToken, hasToken, err := s.store.Get(ctx, storage.KeyAuthToken)
	if internalErrors.Is(err, internalErrors.ErrStorageCorrupted) {
		return s.discardCorrupted(ctx, err), nil
	}
	if err != nil {
		return Session{}, err
	}
	userData, hasUser, err := s.store.Get(ctx, storage.KeyUserData)
	if internalErrors.Is(err, internalErrors.ErrStorageCorrupted) {
		return s.discardCorrupted(ctx, err), nil
	}
	if err != nil {
		return Session{}, err
	}

	if !hasToken && !hasUser {
		return Session{}, nil
	}

	session, err := decodeRecord(sessionToken, hasToken, userData, hasUser)
	if err != nil {
		return s.discardCorrupted(ctx, err), nil
	}
	return session, nil
}

// discardCorrupted deletes the record and returns the empty session.
func (s *State) discardCorrupted(ctx context.Context, cause error) Session {
	s.logger.Warn().Err(cause).Msg("clearing corrupted session record")
	if delErr := s.store.Delete(ctx, storage.RecordKeys...); delErr != nil {
		s.logger.Error().Err(delErr).Msg("failed to delete corrupted session record")
	}
	return Session{}
}

func decodeRecord(sessionToken string, hasToken bool, userData string, hasUser bool) (Session, error) {
	if !hasToken || strings.TrimSpace(sessionToken) == "" {
		return Session{}, errors.Wrap(internalErrors.ErrStorageCorrupted, "token entry missing")
	}
	if !hasUser {
		return Session{}, errors.Wrap(internalErrors.ErrStorageCorrupted, "user entry missing")
	}
	var user users.Profile
	if err := json.Unmarshal([]byte(userData), &user); err != nil {
		return Session{}, errors.Wrapf(internalErrors.ErrStorageCorrupted, "decoding user: %s", err.Error())
	}
	if err := user.Validate(); err != nil {
		return Session{}, errors.Wrapf(internalErrors.ErrStorageCorrupted, "stored user: %s", err.Error())
	}
	return Session{Token: sessionToken, User: &user}, nil
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Session:     s.session.Clone(),
		Initialized: s.initialized || s.mutated,
	}
}

func (s *State) notify(snap Snapshot) {
	s.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
