package filestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/storage"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ storage.Store = (*Store)(nil)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store keeps all entries in a single JSON file. Every write replaces the file
// through a rename so readers never observe a half written record. When a
// sealing key is configured the file content is encrypted with
// XChaCha20-Poly1305. A file that cannot be unsealed or decoded reads as
// internalErrors.ErrStorageCorrupted; writes replace it and deletes remove it.
type Store struct {
	mu   sync.Mutex
	path string
	aead cipher.AEAD
}

// Option configures a Store
type Option func(*Store) error

// WithSealingKey encrypts the file with a hex encoded 32 byte key.
func WithSealingKey(hexKey string) Option {
	return func(s *Store) error {
		if hexKey == "" {
			return nil
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return fmt.Errorf("[filestore] decoding sealing key: %w", err)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("[filestore] sealing key: %w", err)
		}
		s.aead = aead
		return nil
	}
}

// New creates a store backed by the file at path. The parent directory is
// created if needed. The file itself is only created on the first write.
func New(path string, options ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("[filestore] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("[filestore] creating %s: %w", filepath.Dir(path), err)
	}
	s := &Store{path: path}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
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

	current, err := s.load()
	if internalErrors.Is(err, internalErrors.ErrStorageCorrupted) {
		current = make(map[string]string)
	} else if err != nil {
		return err
	}
	for k, v := range entries {
		current[k] = v
	}
	return s.save(current)
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if internalErrors.Is(err, internalErrors.ErrStorageCorrupted) {
		return s.remove()
	}
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := current[k]; ok {
			delete(current, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if len(current) == 0 {
		return s.remove()
	}
	return s.save(current)
}

func (s *Store) remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[filestore] removing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("[filestore] reading %s: %w", s.path, err)
	}

	if s.aead != nil {
		if data, err = s.open(data); err != nil {
			return nil, err
		}
	}

	entries := make(map[string]string)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("[filestore] decoding %s: %w: %v", s.path, internalErrors.ErrStorageCorrupted, err)
	}
	return entries, nil
}

func (s *Store) save(entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("[filestore] encoding entries: %w", err)
	}
	if s.aead != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("[filestore] creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // already renamed on success

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("[filestore] chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("[filestore] writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("[filestore] syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore] closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("[filestore] replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[filestore] generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(storage.KeyAuthToken)), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("[filestore] sealed file %s is truncated: %w", s.path, internalErrors.ErrStorageCorrupted)
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(storage.KeyAuthToken))
	if err != nil {
		return nil, fmt.Errorf("[filestore] unsealing %s: %w: %v", s.path, internalErrors.ErrStorageCorrupted, err)
	}
	return plaintext, nil
}
