package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	refreshSecretSize = 32
	// MaxRefreshTokenLen bounds presented tokens before hashing.
	MaxRefreshTokenLen = 4096
)

// NewRefreshToken returns an opaque base64url secret of refreshSecretSize
// random bytes. Only its hash may be persisted.
func NewRefreshToken() (string, error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// HashRefreshToken returns the hex SHA-256 of the presented token exactly as
// the client sent it. Any string hashes, so unknown or malformed tokens fall
// through to a ledger miss.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CleanRefreshToken trims the presented value and reports whether it is
// usable: non-blank and within MaxRefreshTokenLen.
func CleanRefreshToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > MaxRefreshTokenLen {
		return token, false
	}
	return token, true
}
