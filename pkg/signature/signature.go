// Package signature signs and verifies webhook payloads with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Prefix may precede the hex digest in a signature header.
const Prefix = "sha256="

var (
	ErrMissingSignature = errors.New("signature is missing")
	ErrMalformed        = errors.New("signature is not a hex digest")
	ErrMismatch         = errors.New("signature does not match payload")
)

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature, with or without Prefix, against payload.
// The digests are compared in constant time.
func Verify(secret string, payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, Prefix)

	if signature == "" {
		return ErrMissingSignature
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrMalformed
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrMismatch
	}

	return nil
}

// HashSecret returns the hex SHA-256 of a secret, the only form in which
// webhook secrets are stored. An empty secret hashes to "".
func HashSecret(secret string) string {
	if secret == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(secret))

	return hex.EncodeToString(sum[:])
}

// MatchesHash reports whether secret hashes to the stored hash.
func MatchesHash(secret, hash string) bool {
	return hmac.Equal([]byte(HashSecret(secret)), []byte(hash))
}
