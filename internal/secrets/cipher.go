// Package secrets encrypts provider credentials at rest.
//
// The envelope format is "encrypted:<hex nonce>:<hex ciphertext>", kept
// stable so rows written by earlier deployments keep the same shape. The
// cipher is AES-256-GCM with a key derived from the ENCRYPTION_KEY
// passphrase via scrypt.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"
)

// Prefix marks an encrypted credential value.
const Prefix = "encrypted:"

// DefaultPassphrase is used when ENCRYPTION_KEY is unset. It exists so dev
// environments work out of the box; NewCipher logs a warning when it is in
// effect and production deployments must override it.
const DefaultPassphrase = "provider-hub-dev-key-do-not-use"

var scryptSalt = []byte("provider-hub-credentials")

// Cipher encrypts and decrypts credential strings.
type Cipher struct {
	aead       cipher.AEAD
	defaultKey bool
}

// NewCipher derives an AES-256-GCM cipher from the passphrase. An empty
// passphrase falls back to DefaultPassphrase with a logged configuration
// warning.
func NewCipher(passphrase string) (*Cipher, error) {
	defaultKey := false
	if passphrase == "" {
		passphrase = DefaultPassphrase
		defaultKey = true
		zap.L().Warn("secrets: ENCRYPTION_KEY not set, using insecure default key")
	}

	key, err := scrypt.Key([]byte(passphrase), scryptSalt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: derive key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, eris.Wrap(err, "secrets: create GCM")
	}

	return &Cipher{aead: aead, defaultKey: defaultKey}, nil
}

// UsingDefaultKey reports whether the insecure fallback passphrase is in use.
func (c *Cipher) UsingDefaultKey() bool {
	return c.defaultKey
}

// IsEncrypted reports whether s carries the encrypted envelope prefix.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Encrypt seals plaintext into the envelope format. Encrypting an
// already-enveloped value is rejected to avoid double wrapping.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if IsEncrypted(plaintext) {
		return "", eris.New("secrets: value is already encrypted")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", eris.Wrap(err, "secrets: generate nonce")
	}

	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Prefix + hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an enveloped value. Values without the prefix are returned
// unchanged, so legacy plaintext rows keep working during migration.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	parts := strings.SplitN(strings.TrimPrefix(value, Prefix), ":", 2)
	if len(parts) != 2 {
		return "", eris.New("secrets: malformed encrypted value")
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", eris.Wrap(err, "secrets: decode nonce")
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", eris.New("secrets: bad nonce length")
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", eris.Wrap(err, "secrets: decode ciphertext")
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", eris.Wrap(err, "secrets: decrypt")
	}
	return string(plaintext), nil
}
