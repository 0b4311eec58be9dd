package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed token")
)

// TokenInfo is what the runtime knows about its narrator bearer token. The
// client never validates signatures; it only reads claims so it can warn
// before the token expires mid-session.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect parses the token without verifying it and extracts the claims the
// runtime cares about. A token with no expiry claim yields a zero ExpiresAt.
func Inspect(tokenString string) (*TokenInfo, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return nil, ErrMalformedToken
	}

	info := &TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// ExpiresWithin reports whether the token expires inside the given window.
// Tokens without an expiry claim never report true.
func (t *TokenInfo) ExpiresWithin(window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(t.ExpiresAt) < window
}
