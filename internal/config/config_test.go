package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/erp-session/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewFromMap_Defaults(t *testing.T) {
	c, err := config.NewFromMap(map[string]string{})
	require.NoError(t, err)

	require.Equal(t, "University ERP", c.GetAppName())
	require.Equal(t, ":4200", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:8000/api", c.GetAPIURL())
	require.Equal(t, 30*time.Second, c.GetAPITimeout())
	require.Equal(t, config.StoreDriverFile, c.GetStoreDriver())
	require.Equal(t, config.FallbackAutomatic, c.GetFallbackMode())
	require.Equal(t, 5*time.Second, c.GetNoticeTTL())
	require.False(t, c.GetCheckTokenExpiry())
	require.Equal(t, []string{"openid", "profile", "email"}, c.GetGoogleScopes())
	require.Equal(t, "http://localhost:4200/auth/google/callback", c.GetGoogleRedirectURL())
	require.Equal(t, "http://127.0.0.1/auth/google/callback", c.GetGoogleCLIRedirectURL())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:4200"))
}

func TestNewFromMap_Overrides(t *testing.T) {
	c, err := config.NewFromMap(map[string]string{
		"API_URL":             "https://erp.example.edu/api/",
		"PORT":                ":9000",
		"STORE_DRIVER":        "SQLite",
		"STORE_PATH":          "/tmp/session.db",
		"LOGIN_FALLBACK":      "manual",
		"NOTICE_TTL":          "2s",
		"GOOGLE_REDIRECT_URL": "https://erp.example.edu/cb",
		"ALLOWED_ORIGINS":     "https://a.example.edu, https://b.example.edu",
	})
	require.NoError(t, err)

	require.Equal(t, "https://erp.example.edu/api", c.GetAPIURL())
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, config.StoreDriverSQLite, c.GetStoreDriver())
	require.Equal(t, config.FallbackManual, c.GetFallbackMode())
	require.Equal(t, 2*time.Second, c.GetNoticeTTL())
	require.Equal(t, "https://erp.example.edu/cb", c.GetGoogleRedirectURL())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.edu"))
}

func TestNewFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		msg  string
	}{
		{"unknown fallback", map[string]string{"LOGIN_FALLBACK": "sometimes"}, "LOGIN_FALLBACK"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "redis"}, "STORE_DRIVER"},
		{"missing path", map[string]string{"STORE_PATH": " "}, "STORE_PATH"},
		{"short key", map[string]string{"STORE_KEY": "abcd"}, "STORE_KEY"},
		{"bad duration", map[string]string{"NOTICE_TTL": "soon"}, "failed to parse environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.NewFromMap(tt.vars)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestMemoryDriverNeedsNoPath(t *testing.T) {
	c, err := config.NewFromMap(map[string]string{"STORE_DRIVER": "memory", "STORE_PATH": ""})
	require.NoError(t, err)
	require.Equal(t, config.StoreDriverMemory, c.GetStoreDriver())
}
