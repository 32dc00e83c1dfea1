package sessions_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	internalErrors "github.com/jrsteele09/erp-session/internal/errors"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/storage"
	"github.com/jrsteele09/erp-session/storage/filestore"
	"github.com/jrsteele09/erp-session/storage/memstore"
	"github.com/jrsteele09/erp-session/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	ctx   context.Context
	store *memstore.Store
	state *sessions.State
}

func setupTestFixture(t *testing.T, options ...sessions.StateOption) *testFixture {
	t.Helper()
	store := memstore.New()
	state, err := sessions.New(store, options...)
	require.NoError(t, err)
	return &testFixture{ctx: context.Background(), store: store, state: state}
}

func testUser() *users.Profile {
	return &users.Profile{ID: 1, Email: "a@b.com", FirstName: "A", LastName: "B"}
}

func storedEntry(t *testing.T, f *testFixture, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	return v, ok
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := sessions.New(nil)
	require.Error(t, err)
}

func TestSetSession(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))

	require.Equal(t, testUser(), f.state.CurrentUser())
	require.Equal(t, "abc", f.state.Token())
	require.True(t, f.state.IsAuthenticated(f.ctx))
	require.True(t, f.state.Initialized())

	tok, ok := storedEntry(t, f, storage.KeyAuthToken)
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	raw, ok := storedEntry(t, f, storage.KeyUserData)
	require.True(t, ok)
	var stored users.Profile
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Equal(t, *testUser(), stored)
}

func TestSetSession_CurrentUserIsACopy(t *testing.T) {
	f := setupTestFixture(t)
	user := testUser()
	require.NoError(t, f.state.SetSession(f.ctx, "abc", user))

	user.Email = "changed@b.com"
	got := f.state.CurrentUser()
	require.Equal(t, "a@b.com", got.Email)

	got.FirstName = "Z"
	require.Equal(t, "A", f.state.CurrentUser().FirstName)
}

func TestSetSession_InvalidData(t *testing.T) {
	tests := []struct {
		name  string
		token string
		user  *users.Profile
	}{
		{"empty token", "", testUser()},
		{"blank token", "   ", testUser()},
		{"nil user", "abc", nil},
		{"missing id", "abc", &users.Profile{Email: "a@b.com"}},
		{"missing email", "abc", &users.Profile{ID: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			require.NoError(t, f.state.SetSession(f.ctx, "prior", testUser()))

			err := f.state.SetSession(f.ctx, tt.token, tt.user)
			require.ErrorIs(t, err, internalErrors.ErrInvalidSessionData)

			require.Equal(t, "prior", f.state.Token())
			require.True(t, f.state.IsAuthenticated(f.ctx))
			tok, _ := storedEntry(t, f, storage.KeyAuthToken)
			require.Equal(t, "prior", tok)
		})
	}
}

func TestSetSession_StoreFailureKeepsPriorSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.state.SetSession(f.ctx, "prior", testUser()))

	f.store.InjectError(errors.New("quota exceeded"))
	other := &users.Profile{ID: 2, Email: "c@d.com"}
	require.Error(t, f.state.SetSession(f.ctx, "next", other))
	f.store.InjectError(nil)

	require.Equal(t, "prior", f.state.Token())
	require.Equal(t, int64(1), f.state.CurrentUser().ID)
}

func TestClearSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))

	f.state.ClearSession(f.ctx)

	require.False(t, f.state.IsAuthenticated(f.ctx))
	require.Nil(t, f.state.CurrentUser())
	require.Empty(t, f.state.Token())
	require.Equal(t, 0, f.store.Len())

	// Clearing again is harmless
	f.state.ClearSession(f.ctx)
	require.False(t, f.state.IsAuthenticated(f.ctx))
}

func TestClearSession_StoreFailureStillClearsMemory(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))

	f.store.InjectError(errors.New("locked"))
	f.state.ClearSession(f.ctx)
	f.store.InjectError(nil)

	require.Empty(t, f.state.Token())
	require.False(t, f.state.IsAuthenticated(f.ctx))
}

func TestInitialize_EmptyStore(t *testing.T) {
	f := setupTestFixture(t)
	require.False(t, f.state.Initialized())

	require.NoError(t, f.state.Initialize(f.ctx))

	require.True(t, f.state.Initialized())
	require.False(t, f.state.IsAuthenticated(f.ctx))
	require.Nil(t, f.state.CurrentUser())
}

func TestInitialize_RoundTripAfterRestart(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))

	restarted, err := sessions.New(f.store)
	require.NoError(t, err)
	require.False(t, restarted.IsAuthenticated(f.ctx))

	require.NoError(t, restarted.Initialize(f.ctx))
	require.Equal(t, "abc", restarted.Token())
	require.Equal(t, testUser(), restarted.CurrentUser())
	require.True(t, restarted.IsAuthenticated(f.ctx))
}

func TestInitialize_CorruptRecordIsCleared(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"token only", map[string]string{storage.KeyAuthToken: "abc"}},
		{"user only", map[string]string{storage.KeyUserData: `{"id":1,"email":"a@b.com"}`}},
		{"undecodable user", map[string]string{storage.KeyAuthToken: "abc", storage.KeyUserData: "{not json"}},
		{"invalid user", map[string]string{storage.KeyAuthToken: "abc", storage.KeyUserData: `{"id":0}`}},
		{"empty token", map[string]string{storage.KeyAuthToken: "", storage.KeyUserData: `{"id":1,"email":"a@b.com"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			require.NoError(t, f.store.SetAll(f.ctx, tt.entries))

			require.NoError(t, f.state.Initialize(f.ctx))

			require.False(t, f.state.IsAuthenticated(f.ctx))
			require.Nil(t, f.state.CurrentUser())
			require.Equal(t, 0, f.store.Len())
		})
	}
}

func TestInitialize_DamagedSessionFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := filestore.New(path)
	require.NoError(t, err)
	state, err := sessions.New(store)
	require.NoError(t, err)

	require.NoError(t, state.Initialize(ctx))
	require.True(t, state.Initialized())
	require.False(t, state.IsAuthenticated(ctx))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, state.SetSession(ctx, "abc", testUser()))
	require.True(t, state.IsAuthenticated(ctx))

	// Damaged again while signed in: reconcile drops the session and clears
	// the file, logout still succeeds
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.False(t, state.IsAuthenticated(ctx))
	require.True(t, state.Reconcile(ctx))
	require.Nil(t, state.CurrentUser())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	state.ClearSession(ctx)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestInitialize_StoreReadFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.store.InjectError(errors.New("io error"))

	require.Error(t, f.state.Initialize(f.ctx))
	require.False(t, f.state.Initialized())

	f.store.InjectError(nil)
	require.NoError(t, f.state.Initialize(f.ctx))
}

func TestInitialize_DoesNotOverwriteLiveSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.SetAll(f.ctx, map[string]string{
		storage.KeyAuthToken: "stale",
		storage.KeyUserData:  `{"id":9,"email":"old@b.com"}`,
	}))

	// Set before Initialize ran; the live session wins
	require.NoError(t, f.state.SetSession(f.ctx, "fresh", testUser()))
	require.NoError(t, f.state.Initialize(f.ctx))
	require.Equal(t, "fresh", f.state.Token())

	// Repeated Initialize calls are no-ops
	require.NoError(t, f.store.SetAll(f.ctx, map[string]string{storage.KeyAuthToken: "tampered"}))
	require.NoError(t, f.state.Initialize(f.ctx))
	require.Equal(t, "fresh", f.state.Token())
}

func TestIsAuthenticated_TokenDivergence(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))

	secondTab, err := sessions.New(f.store)
	require.NoError(t, err)
	require.NoError(t, secondTab.Initialize(f.ctx))

	t.Run("other tab logs out", func(t *testing.T) {
		secondTab.ClearSession(f.ctx)
		require.False(t, f.state.IsAuthenticated(f.ctx))
		// Pure read: memory is untouched
		require.Equal(t, "abc", f.state.Token())
	})

	t.Run("storage tampered", func(t *testing.T) {
		require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))
		require.NoError(t, f.store.SetAll(f.ctx, map[string]string{storage.KeyAuthToken: "xyz"}))
		require.False(t, f.state.IsAuthenticated(f.ctx))
	})

	t.Run("store unreadable", func(t *testing.T) {
		require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))
		f.store.InjectError(errors.New("io error"))
		defer f.store.InjectError(nil)
		require.False(t, f.state.IsAuthenticated(f.ctx))
	})
}

func TestIsAuthenticated_ExpiryCheck(t *testing.T) {
	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	t.Run("disabled by default", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.state.SetSession(f.ctx, expired, testUser()))
		require.True(t, f.state.IsAuthenticated(f.ctx))
	})

	t.Run("enabled", func(t *testing.T) {
		f := setupTestFixture(t, sessions.WithExpiryCheck(true))
		require.NoError(t, f.state.SetSession(f.ctx, expired, testUser()))
		require.False(t, f.state.IsAuthenticated(f.ctx))

		require.NoError(t, f.state.SetSession(f.ctx, "opaque-key", testUser()))
		require.True(t, f.state.IsAuthenticated(f.ctx))
	})
}

func TestReconcile(t *testing.T) {
	f := setupTestFixture(t)
	require.False(t, f.state.Reconcile(f.ctx))

	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))
	require.False(t, f.state.Reconcile(f.ctx))

	t.Run("other tab logged in as someone else", func(t *testing.T) {
		other, err := sessions.New(f.store)
		require.NoError(t, err)
		require.NoError(t, other.SetSession(f.ctx, "def", &users.Profile{ID: 2, Email: "c@d.com"}))

		require.True(t, f.state.Reconcile(f.ctx))
		require.Equal(t, "def", f.state.Token())
		require.Equal(t, int64(2), f.state.CurrentUser().ID)
		require.True(t, f.state.IsAuthenticated(f.ctx))
	})

	t.Run("other tab logged out", func(t *testing.T) {
		require.NoError(t, f.store.Delete(f.ctx, storage.RecordKeys...))

		require.True(t, f.state.Reconcile(f.ctx))
		require.Empty(t, f.state.Token())
		require.Nil(t, f.state.CurrentUser())
	})
}

func TestSubscribe(t *testing.T) {
	f := setupTestFixture(t)

	var got []sessions.Snapshot
	unsubscribe := f.state.Subscribe(func(s sessions.Snapshot) {
		got = append(got, s)
		// Reading from inside a callback must not deadlock
		_ = f.state.Token()
	})

	require.NoError(t, f.state.SetSession(f.ctx, "abc", testUser()))
	f.state.ClearSession(f.ctx)

	require.Len(t, got, 2)
	require.True(t, got[0].Authenticated())
	require.Equal(t, "abc", got[0].Session.Token)
	require.False(t, got[1].Authenticated())

	unsubscribe()
	unsubscribe()
	require.NoError(t, f.state.SetSession(f.ctx, "def", testUser()))
	require.Len(t, got, 2)
}

func TestConcurrentAccess(t *testing.T) {
	f := setupTestFixture(t)
	done := make(chan struct{})
	for i := range 4 {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := range 50 {
				if (i+j)%2 == 0 {
					_ = f.state.SetSession(f.ctx, "abc", testUser())
				} else {
					f.state.IsAuthenticated(f.ctx)
					f.state.CurrentUser()
				}
			}
		}()
	}
	for range 4 {
		<-done
	}
	require.True(t, f.state.IsAuthenticated(f.ctx))
}
