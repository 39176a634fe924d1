package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"

	"eventlens/internal/errs"
)

// DefaultSecretLength is the plaintext length of a generated API key.
const DefaultSecretLength = 32

// Hasher provides one-way hashing for API-key secrets and generation
// of the secrets themselves. Hashing is bcrypt, which is deliberately
// slow (tens of milliseconds per verification) and performs its own
// constant-time comparison, so a mismatch reveals nothing about where
// the inputs diverge.
type Hasher struct {
	cost int
	rand io.Reader
}

// NewHasher returns a Hasher at bcrypt's default cost, reading entropy
// from crypto/rand.
func NewHasher() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost, rand: rand.Reader}
}

// Hash returns the salted bcrypt digest of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: hash secret: %v", errs.ErrInternal, err)
	}
	return string(digest), nil
}

// Verify reports whether secret hashes to digest.
func (h *Hasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// GenerateSecret produces length characters of hex from the CSPRNG.
func (h *Hasher) GenerateSecret(length int) (string, error) {
	if length <= 0 {
		length = DefaultSecretLength
	}
	buf := make([]byte, (length+1)/2)
	if _, err := io.ReadFull(h.rand, buf); err != nil {
		return "", fmt.Errorf("%w: generate secret: %v", errs.ErrInternal, err)
	}
	return hex.EncodeToString(buf)[:length], nil
}
