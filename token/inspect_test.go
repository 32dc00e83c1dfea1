package token_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/erp-session/token"
	"github.com/stretchr/testify/require"
)

func signedJWT(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestInspect(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := signedJWT(t, jwtlib.MapClaims{
		"sub":   "1234",
		"email": "a@b.com",
		"iss":   "https://accounts.google.com",
		"exp":   exp.Unix(),
	})

	info := token.Inspect(raw)
	require.Equal(t, token.KindJWT, info.Kind)
	require.Equal(t, len(raw), info.Length)
	require.Equal(t, "1234", info.Subject)
	require.Equal(t, "a@b.com", info.Email)
	require.Equal(t, "https://accounts.google.com", info.Issuer)
	require.True(t, exp.Equal(info.ExpiresAt))

	require.Equal(t, token.KindEmpty, token.Inspect("  ").Kind)
	require.Equal(t, token.KindOpaque, token.Inspect("ya29.a0AfH6SM").Kind)
	require.Equal(t, token.KindOpaque, token.Inspect("9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b").Kind)
	require.Equal(t, token.KindOpaque, token.Inspect("not.a.jwt").Kind)
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	token.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { token.NowTimeFunc = time.Now })

	tests := []struct {
		name    string
		raw     string
		expired bool
	}{
		{"empty", "", true},
		{"opaque key", "9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b", false},
		{"future exp", signedJWT(t, jwtlib.MapClaims{"exp": now.Add(time.Hour).Unix()}), false},
		{"past exp", signedJWT(t, jwtlib.MapClaims{"exp": now.Add(-time.Hour).Unix()}), true},
		{"no exp", signedJWT(t, jwtlib.MapClaims{"sub": "1"}), false},
		{"undecodable jwt", "aaa.bbb.ccc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expired, token.IsExpired(tt.raw))
		})
	}
}
