package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can read from a credential without the
// signing key.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
	Opaque    bool // not a JWT; never expires locally
}

// Expired reports whether the token carries an expiry that has passed.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// InspectToken reads the claims of token without verifying the signature. The
// backend remains the judge of validity; this only avoids sending a token that
// is known to be expired.
func InspectToken(token string) TokenInfo {
	var c jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return TokenInfo{Opaque: true}
	}
	info := TokenInfo{Subject: c.Subject}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	return info
}
