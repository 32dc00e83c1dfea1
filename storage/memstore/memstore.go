package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/erp-session/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a thread-safe in-memory implementation of storage.Store. Several
// sessions.State values sharing one Store behave like browser tabs sharing
// localStorage.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	err     error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		entries: make(map[string]string),
	}
}

// InjectError makes every following operation fail with err until it is
// called again with nil.
func (s *Store) InjectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *Store) SetAll(_ context.Context, entries map[string]string) error {
	for k := range entries {
		if err := storage.ValidateKey(k); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	for k, v := range entries {
		s.entries[k] = v
	}
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Len returns the number of stored entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
