package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	BackendConfig
	GoogleConfig
	StoreConfig
	LoginConfig
	CorsConfig
}

type EnvConfig interface {
	GetAppName() string
	GetPort() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
}

type BackendConfig interface {
	GetAPIURL() string
	GetAPITimeout() time.Duration
}

type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleIssuer() string
	GetGoogleRevokeURL() string
	GetGoogleScopes() []string
	GetGoogleRedirectURL() string
	GetGoogleCLIRedirectURL() string
}

type StoreConfig interface {
	GetStoreDriver() StoreDriver
	GetStorePath() string
	GetStoreKey() string
}

type LoginConfig interface {
	GetFallbackMode() FallbackMode
	GetNoticeTTL() time.Duration
	GetCheckTokenExpiry() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Backend
	Google
	Store
	Login
	Cors
}

var _ Config = mainConfig{}

// New loads the configuration from the process environment.
func New() (Config, error) {
	return parse(env.Options{})
}

// NewFromMap loads the configuration from vars instead of the process
// environment.
func NewFromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	c := mainConfig{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return nil, fmt.Errorf("[config] failed to parse environment: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("[config] %w", err)
	}
	return c, nil
}

func (c mainConfig) validate() error {
	switch c.GetFallbackMode() {
	case FallbackAutomatic, FallbackManual, FallbackOff:
	default:
		return fmt.Errorf("LOGIN_FALLBACK must be one of automatic, manual, off: got %q", c.Login.Fallback)
	}
	switch c.GetStoreDriver() {
	case StoreDriverFile, StoreDriverSQLite, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of file, sqlite, memory: got %q", c.Store.Driver)
	}
	if c.GetStoreDriver() != StoreDriverMemory && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("STORE_PATH is required for the %s driver", c.Store.Driver)
	}
	if c.Store.Key != "" && len(c.Store.Key) != 64 {
		return fmt.Errorf("STORE_KEY must be 32 bytes hex encoded")
	}
	if c.Backend.APIURL == "" {
		return fmt.Errorf("API_URL is required")
	}
	return nil
}

// GetGoogleRedirectURL is the local callback registered with Google for the
// interactive sign-in flow.
func (c mainConfig) GetGoogleRedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	return strings.TrimRight(c.GetBaseURL(), "/") + "/auth/google/callback"
}
