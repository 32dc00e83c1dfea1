// Package token inspects credentials and session tokens without verifying
// them. Verification belongs to whoever issued the token; the client only
// needs to tell JWTs from opaque keys and read the expiry.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Kind classifies a raw token
type Kind string

const (
	KindEmpty  Kind = "empty"
	KindJWT    Kind = "jwt"
	KindOpaque Kind = "opaque"
)

// NowTimeFunc is used for expiry checks
var NowTimeFunc = time.Now

// Info is what can be read from a token without a key.
type Info struct {
	Kind      Kind
	Length    int
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Inspect classifies raw. Strings with three dot separated segments that fail
// to parse are reported as opaque.
func Inspect(raw string) Info {
	raw = strings.TrimSpace(raw)
	info := Info{Kind: KindEmpty, Length: len(raw)}
	if raw == "" {
		return info
	}
	info.Kind = KindOpaque
	if strings.Count(raw, ".") != 2 {
		return info
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return info
	}

	info.Kind = KindJWT
	info.Subject, _ = claims["sub"].(string)
	info.Email, _ = claims["email"].(string)
	info.Issuer, _ = claims["iss"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info
}

// IsExpired reports whether raw is a JWT whose exp claim is in the past.
// Opaque tokens never expire on the client. Tokens that look like a JWT but
// cannot be decoded are treated as expired.
func IsExpired(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	if strings.Count(raw, ".") != 2 {
		return false
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !NowTimeFunc().Before(exp.Time)
}
