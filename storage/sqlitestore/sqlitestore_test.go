package sqlitestore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jrsteele09/erp-session/storage"
	"github.com/jrsteele09/erp-session/storage/sqlitestore"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(sqlitestore.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "session.db"))

	_, ok, err := s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetAll(ctx, map[string]string{
		storage.KeyAuthToken: "abc",
		storage.KeyUserData:  `{"id":1,"email":"a@b.com"}`,
	}))

	v, ok, err := s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", v)

	// Overwrite
	require.NoError(t, s.SetAll(ctx, map[string]string{storage.KeyAuthToken: "def"}))
	v, _, err = s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	require.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, storage.RecordKeys...))
	for _, k := range storage.RecordKeys {
		_, ok, err := s.Get(ctx, k)
		require.NoError(t, err)
		require.False(t, ok, k)
	}
}

func TestStore_SharedBetweenHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	first := openTestStore(t, path)
	second := openTestStore(t, path)

	require.NoError(t, first.SetAll(ctx, map[string]string{storage.KeyAuthToken: "tab-1"}))

	v, ok, err := second.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tab-1", v)

	require.NoError(t, second.Delete(ctx, storage.KeyAuthToken))
	_, ok, err = first.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "session.db"))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := string(rune('a' + i))
			errs <- s.SetAll(ctx, map[string]string{storage.KeyAuthToken: token, storage.KeyUserData: token})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Both entries always come from the same write
	token, _, err := s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	user, _, err := s.Get(ctx, storage.KeyUserData)
	require.NoError(t, err)
	require.Equal(t, token, user)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlitestore.Open(sqlitestore.Config{})
	require.Error(t, err)
}
