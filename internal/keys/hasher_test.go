package keys

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testHasher runs at bcrypt's minimum cost so the suite stays fast.
func testHasher() *Hasher {
	return &Hasher{cost: bcrypt.MinCost, rand: rand.Reader}
}

func TestHasherRoundTrip(t *testing.T) {
	h := testHasher()

	secret, err := h.GenerateSecret(DefaultSecretLength)
	require.NoError(t, err)

	digest, err := h.Hash(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, digest)

	assert.True(t, h.Verify(secret, digest))
	assert.False(t, h.Verify(secret+"x", digest))
	assert.False(t, h.Verify("", digest))
}

func TestHashIsSalted(t *testing.T) {
	h := testHasher()

	first, err := h.Hash("same-secret")
	require.NoError(t, err)
	second, err := h.Hash("same-secret")
	require.NoError(t, err)

	// Same input, different salt, both verify.
	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same-secret", first))
	assert.True(t, h.Verify("same-secret", second))
}

func TestGenerateSecret(t *testing.T) {
	h := testHasher()

	secret, err := h.GenerateSecret(32)
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	assert.Regexp(t, "^[0-9a-f]+$", secret)

	odd, err := h.GenerateSecret(7)
	require.NoError(t, err)
	assert.Len(t, odd, 7)

	// Non-positive lengths fall back to the default.
	def, err := h.GenerateSecret(0)
	require.NoError(t, err)
	assert.Len(t, def, DefaultSecretLength)
}

func TestGenerateSecretUnique(t *testing.T) {
	h := testHasher()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := h.GenerateSecret(DefaultSecretLength)
		require.NoError(t, err)
		assert.False(t, seen[secret], "duplicate secret generated")
		seen[secret] = true
	}
}
