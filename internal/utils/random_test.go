package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestRandomDigits(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := RandomDigits(6)
		require.NoError(t, err)
		assert.True(t, IsNumericCode(code, 6), "code %q", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 150)
}

func TestHashes(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)

	assert.Equal(t, KeyedHash("k", "123456"), KeyedHash("k", "123456"))
	assert.NotEqual(t, KeyedHash("k1", "123456"), KeyedHash("k2", "123456"))
}
