package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_String(t *testing.T) {
	s := Secret("password123")
	assert.Equal(t, "[REDACTED]", s.String())

	empty := Secret("")
	assert.Equal(t, "", empty.String())
}

func TestSecret_GoString(t *testing.T) {
	s := Secret("password123")
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))

	empty := Secret("")
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", empty))
}

func TestSecret_MarshalJSON(t *testing.T) {
	s := Secret("password123")
	data, err := s.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))
}

func TestSecret_MarshalYAML(t *testing.T) {
	s := Secret("password123")
	val, err := s.MarshalYAML()
	assert.NoError(t, err)
	assert.Equal(t, "[REDACTED]", val)
}

func TestEncryptDecryptCredential_RoundTrip(t *testing.T) {
	key, err := EncryptionKeyFromHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")
	require.NoError(t, err)

	encrypted, err := EncryptCredential(key, "my-api-secret")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "my-api-secret")

	decrypted, err := DecryptCredential(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", decrypted)
}

func TestEncryptCredential_NonDeterministic(t *testing.T) {
	key, err := EncryptionKeyFromHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")
	require.NoError(t, err)

	a, err := EncryptCredential(key, "same-plaintext")
	require.NoError(t, err)
	b, err := EncryptCredential(key, "same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "random IV should make each encryption unique")
}

func TestEncryptionKeyFromHex_RejectsWrongLength(t *testing.T) {
	_, err := EncryptionKeyFromHex("deadbeef")
	assert.Error(t, err)
}

func TestEncryptionKeyFromHex_RejectsNonHex(t *testing.T) {
	_, err := EncryptionKeyFromHex("not-hex-at-all-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}
