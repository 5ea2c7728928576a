package session

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityKey derives the cache partition for a token. Tokens for the same
// subject share a key so a refresh keeps the cached lists. Opaque tokens
// are keyed by digest. The empty token has the empty key.
func IdentityKey(token string) string {
	if token == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			return "user:" + sub
		}
	}

	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:8])
}
