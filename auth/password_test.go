package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Format(t *testing.T) {
	stored, err := HashPassword("public242")
	require.NoError(t, err)

	salt, hash, ok := strings.Cut(stored, ":")
	require.True(t, ok)
	assert.Len(t, salt, 32, "16-byte salt in hex")
	assert.Len(t, hash, 128, "64-byte hash in hex")
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, err := HashPassword("same password")
	require.NoError(t, err)
	b, err := HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, VerifyPassword("same password", a))
	assert.True(t, VerifyPassword("same password", b))
}

func TestVerifyPassword(t *testing.T) {
	stored, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("correct horse", stored))
	assert.False(t, VerifyPassword("correct horse ", stored))
	assert.False(t, VerifyPassword("", stored))
}

func TestVerifyPassword_SaltBindsHash(t *testing.T) {
	stored, err := HashPassword("x")
	require.NoError(t, err)
	_, hash, _ := strings.Cut(stored, ":")

	assert.False(t, VerifyPassword("x", "00112233445566778899aabbccddeeff:"+hash))
}

func TestVerifyPassword_Unicode(t *testing.T) {
	stored, err := HashPassword("пароль")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("пароль", stored))
	assert.False(t, VerifyPassword("парол", stored))
}

func TestVerifyPassword_Malformed(t *testing.T) {
	cases := []string{
		"",
		"nocolon",
		":",
		"salt:",
		":abcd",
		"salt:not-hex",
		"salt:abcd",
		"a:b:c",
	}
	for _, stored := range cases {
		t.Run(stored, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, VerifyPassword("anything", stored))
			})
		})
	}
}
