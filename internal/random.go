package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

const (
	// RefreshSecretSize is the number of random bytes behind a refresh secret.
	RefreshSecretSize = 48
	// SingleUseSecretSize is the number of random bytes behind a verification
	// or reset secret.
	SingleUseSecretSize = 32
)

// Reader is the entropy source for every secret in the module. Tests swap it
// to exercise failure paths.
var Reader io.Reader = rand.Reader

// NewOpaqueSecret returns size random bytes encoded as unpadded base64url.
func NewOpaqueSecret(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("invalid secret size")
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSecret returns the hex sha256 digest of an opaque secret. Only this
// digest is ever persisted.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
