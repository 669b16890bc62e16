package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandBytes(t *testing.T) {
	t.Parallel()

	a, err := RandBytes(32)
	require.NoError(t, err)
	require.Len(t, a, 32)

	b, err := RandBytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPassword_Deterministic(t *testing.T) {
	t.Parallel()

	pw := []byte("correct horse battery staple")
	salt := []byte("salty-salt-123456")

	assert.Equal(t, HashPassword(pw, salt), HashPassword(pw, salt))
	assert.NotEqual(t, HashPassword(pw, salt), HashPassword(pw, []byte("another-salt----")))
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	pw := []byte("hunter2")
	salt := []byte("0123456789abcdef")
	hash := HashPassword(pw, salt)

	assert.True(t, VerifyPassword(pw, salt, hash))
	assert.False(t, VerifyPassword([]byte("wrong"), salt, hash))
	assert.False(t, VerifyPassword(pw, []byte("wrong-salt-bytes"), hash))
}
