package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// refreshTokenBytes is the entropy of an opaque refresh token
const refreshTokenBytes = 32

// NewRefreshToken returns a URL-safe refresh token and the digest stored for it in
// refresh_sessions. The token itself is never persisted.
func NewRefreshToken() (token, digest string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("reading random bytes: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, RefreshTokenDigest(token), nil
}

// RefreshTokenDigest is the hex SHA-256 of token
func RefreshTokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// wellFormedRefreshToken reports whether token could have come from NewRefreshToken
func wellFormedRefreshToken(token string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == refreshTokenBytes
}
