// Package storage defines the durable key-value store the session record is
// mirrored into. Implementations live in the sub packages: memstore for tests
// and ephemeral use, filestore for a single JSON file and sqlitestore for a
// SQLite database shared between processes.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/erp-session/internal/errors"
)

// Keys of the two entries that make up the persisted session record.
const (
	KeyAuthToken = "authToken" // raw session token
	KeyUserData  = "userData"  // JSON serialized users.Profile
)

// RecordKeys lists every key written for a session, in write order.
var RecordKeys = []string{KeyAuthToken, KeyUserData}

// Store is durable key-value storage surviving process restarts. It has no
// authority of its own: callers write it from their in-memory state.
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)

	// SetAll writes every entry in one atomic operation
	SetAll(ctx context.Context, entries map[string]string) error

	// Delete removes keys in one atomic operation. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key cannot be empty", errors.ErrInvalidKey)
	}
	return nil
}
