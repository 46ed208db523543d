package cipher

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, passphrase string, salt []byte) *FieldCipher {
	t.Helper()
	c, err := FromPassphrase(passphrase, salt)
	require.NoError(t, err)
	return c
}

func TestEncryptDecrypt(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	c := newTestCipher(t, "correct horse", salt)

	cases := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"simple", "Team meeting every Tuesday at 10 AM"},
		{"long", strings.Repeat("a", 10000)},
		{"unicode", "café ☕ 日本語"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := c.Encrypt(tc.plaintext)
			require.NoError(t, err)
			if tc.plaintext != "" {
				assert.NotContains(t, blob, tc.plaintext)
			}

			got, err := c.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, got)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	salt, _ := NewSalt()
	c := newTestCipher(t, "pw", salt)

	a, err := c.Encrypt("same text")
	require.NoError(t, err)
	b, err := c.Encrypt("same text")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	salt, _ := NewSalt()
	right := newTestCipher(t, "right", salt)
	wrong := newTestCipher(t, "wrong", salt)

	blob, err := right.Encrypt("private")
	require.NoError(t, err)

	_, err = wrong.Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptDifferentSalt(t *testing.T) {
	s1, _ := NewSalt()
	s2, _ := NewSalt()
	require.NotEqual(t, s1, s2)

	blob, err := newTestCipher(t, "pw", s1).Encrypt("private")
	require.NoError(t, err)

	_, err = newTestCipher(t, "pw", s2).Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptMalformed(t *testing.T) {
	salt, _ := NewSalt()
	c := newTestCipher(t, "pw", salt)

	_, err := c.Decrypt("not base64 !!")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	blob, _ := c.Encrypt("tamper me")
	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	assert.Equal(t, DeriveKey("pw", salt), DeriveKey("pw", salt))
	assert.Len(t, DeriveKey("pw", salt), KeySize)
	assert.NotEqual(t, DeriveKey("pw", salt), DeriveKey("pw2", salt))
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}
