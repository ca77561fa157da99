package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("unit-test-passphrase")
	require.NoError(t, err)

	sealed, err := c.Encrypt("sk-ant-secret-123")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.True(t, strings.HasPrefix(sealed, "encrypted:"))
	assert.NotContains(t, sealed, "sk-ant-secret-123")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-secret-123", plain)
}

func TestEncryptRejectsDoubleWrap(t *testing.T) {
	c, err := NewCipher("unit-test-passphrase")
	require.NoError(t, err)

	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	_, err = c.Encrypt(sealed)
	assert.Error(t, err)
}

func TestDecryptPassesThroughPlaintext(t *testing.T) {
	c, err := NewCipher("unit-test-passphrase")
	require.NoError(t, err)

	plain, err := c.Decrypt("legacy-plaintext-key")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext-key", plain)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1, err := NewCipher("key-one")
	require.NoError(t, err)
	c2, err := NewCipher("key-two")
	require.NoError(t, err)

	sealed, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	c, err := NewCipher("unit-test-passphrase")
	require.NoError(t, err)

	for _, value := range []string{
		"encrypted:",
		"encrypted:deadbeef",
		"encrypted:not-hex:also-not-hex",
		"encrypted:ab:cd",
	} {
		_, err := c.Decrypt(value)
		assert.Error(t, err, "value %q should not decrypt", value)
	}
}

func TestDefaultKeyWarning(t *testing.T) {
	c, err := NewCipher("")
	require.NoError(t, err)
	assert.True(t, c.UsingDefaultKey())

	c2, err := NewCipher("explicit")
	require.NoError(t, err)
	assert.False(t, c2.UsingDefaultKey())
}

func TestNonceUniquePerEncryption(t *testing.T) {
	c, err := NewCipher("unit-test-passphrase")
	require.NoError(t, err)

	a, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
