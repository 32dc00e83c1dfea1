package config

import (
	"strings"
	"time"
)

// StoreDriver selects the Persistent Store backend.
type StoreDriver string

const (
	StoreDriverFile   StoreDriver = "file"
	StoreDriverSQLite StoreDriver = "sqlite"
	StoreDriverMemory StoreDriver = "memory"
)

// FallbackMode decides what happens when the backend rejects a one-shot
// identity credential.
type FallbackMode string

const (
	// FallbackAutomatic starts the interactive token flow straight away.
	FallbackAutomatic FallbackMode = "automatic"
	// FallbackManual reports the rejection and lets the user start the
	// interactive flow.
	FallbackManual FallbackMode = "manual"
	// FallbackOff never offers the interactive flow.
	FallbackOff FallbackMode = "off"
)

type EnvVars struct {
	AppName  string `env:"APP_NAME" envDefault:"University ERP"`
	Port     string `env:"PORT" envDefault:"4200"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL  string `env:"BASE_URL" envDefault:"http://localhost:4200"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(e.LogLevel)
}

// GetBaseURL returns the base URL the local front end is reachable on (e.g., "http://localhost:4200")
func (e EnvVars) GetBaseURL() string {
	return e.BaseURL
}

type Backend struct {
	APIURL  string        `env:"API_URL" envDefault:"http://localhost:8000/api"`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetAPIURL() string {
	return strings.TrimRight(b.APIURL, "/")
}

func (b Backend) GetAPITimeout() time.Duration {
	return b.Timeout
}

type Google struct {
	ClientID     string   `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	Issuer       string   `env:"GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`
	RevokeURL    string   `env:"GOOGLE_REVOKE_URL" envDefault:"https://oauth2.googleapis.com/revoke"`
	RedirectURL  string   `env:"GOOGLE_REDIRECT_URL"`
	Scopes       []string `env:"GOOGLE_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	// Loopback callback for the command line; no port picks a free one
	CLIRedirectURL string `env:"GOOGLE_CLI_REDIRECT_URL" envDefault:"http://127.0.0.1/auth/google/callback"`
}

func (g Google) GetGoogleClientID() string {
	return g.ClientID
}

func (g Google) GetGoogleClientSecret() string {
	return g.ClientSecret
}

func (g Google) GetGoogleIssuer() string {
	return g.Issuer
}

func (g Google) GetGoogleRevokeURL() string {
	return g.RevokeURL
}

func (g Google) GetGoogleScopes() []string {
	return g.Scopes
}

func (g Google) GetGoogleCLIRedirectURL() string {
	return g.CLIRedirectURL
}

type Store struct {
	Driver string `env:"STORE_DRIVER" envDefault:"file"`
	Path   string `env:"STORE_PATH" envDefault:"./data/session.json"`
	Key    string `env:"STORE_KEY"` // hex encoded 32 byte sealing key, file driver only
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() StoreDriver {
	return StoreDriver(strings.ToLower(s.Driver))
}

func (s Store) GetStorePath() string {
	return s.Path
}

func (s Store) GetStoreKey() string {
	return s.Key
}

type Login struct {
	Fallback         string        `env:"LOGIN_FALLBACK" envDefault:"automatic"`
	NoticeTTL        time.Duration `env:"NOTICE_TTL" envDefault:"5s"`
	CheckTokenExpiry bool          `env:"CHECK_TOKEN_EXPIRY" envDefault:"false"`
}

var _ LoginConfig = Login{}

func (l Login) GetFallbackMode() FallbackMode {
	return FallbackMode(strings.ToLower(l.Fallback))
}

func (l Login) GetNoticeTTL() time.Duration {
	return l.NoticeTTL
}

func (l Login) GetCheckTokenExpiry() bool {
	return l.CheckTokenExpiry
}
