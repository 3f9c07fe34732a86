package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.ErrorIs(t, err, ErrEmptyKey)

	c, err := New("a passphrase")
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	c, err := New("correct horse battery staple")
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		blob, err := c.Encrypt("holded-api-key")
		require.NoError(t, err)
		require.NotContains(t, blob, "holded-api-key")

		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		require.Equal(t, "holded-api-key", got)
	})

	t.Run("fresh nonce per call", func(t *testing.T) {
		t.Parallel()

		a, err := c.Encrypt("same")
		require.NoError(t, err)
		b, err := c.Encrypt("same")
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("layout is nonce, tag, ciphertext", func(t *testing.T) {
		t.Parallel()

		blob, err := c.Encrypt("abc")
		require.NoError(t, err)
		raw, err := base64.StdEncoding.DecodeString(blob)
		require.NoError(t, err)
		require.Len(t, raw, nonceSize+tagSize+3)
	})

	t.Run("empty plaintext", func(t *testing.T) {
		t.Parallel()

		blob, err := c.Encrypt("")
		require.NoError(t, err)
		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestDecryptRejectsBadInput(t *testing.T) {
	t.Parallel()

	c, err := New("key-one")
	require.NoError(t, err)
	other, err := New("key-two")
	require.NoError(t, err)

	blob, err := c.Encrypt("secret")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		c    *Cipher
	}{
		{name: "not base64", in: "%%%", c: c},
		{name: "too short", in: base64.StdEncoding.EncodeToString([]byte("short")), c: c},
		{name: "wrong key", in: blob, c: other},
		{name: "tampered", in: tamper(t, blob), c: c},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.c.Decrypt(tt.in)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func tamper(t *testing.T, blob string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	return base64.StdEncoding.EncodeToString(raw)
}

func TestRoundTripProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		pass := rapid.StringN(1, 64, -1).Draw(t, "passphrase")
		plain := rapid.String().Draw(t, "plaintext")

		c, err := New(pass)
		require.NoError(t, err)
		blob, err := c.Encrypt(plain)
		require.NoError(t, err)
		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		require.Equal(t, plain, got)
	})
}
