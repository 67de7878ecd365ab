package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim of token without verifying the signature.
// The backend stays the authority on validity; this only lets the client
// drop a session it already knows is dead.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the current token carries an exp claim in the
// past. Opaque tokens are never considered expired.
func (s *Store) Expired(now time.Time) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	exp, ok := ExpiresAt(token)
	return ok && !now.Before(exp)
}
