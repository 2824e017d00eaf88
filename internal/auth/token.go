package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// Session tokens are opaque 32-byte random values handed to the client in a
// cookie. Only the SHA-256 digest is stored; a stolen sessions table does not
// yield usable tokens.

const sessionTokenBytes = 32

var (
	ErrMissingToken = errors.New("missing session token")
	ErrInvalidToken = errors.New("invalid session token")
)

// NewSessionToken generates a new opaque session token and its storage hash.
func NewSessionToken() (token string, hash string, err error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, HashSessionToken(token), nil
}

// HashSessionToken returns the hex-encoded SHA-256 digest stored at rest.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenFormat rejects tokens that cannot have been minted here
// before any store lookup happens.
func ValidateTokenFormat(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	if !utf8.ValidString(token) {
		return ErrInvalidToken
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(decoded) != sessionTokenBytes {
		return ErrInvalidToken
	}
	return nil
}
