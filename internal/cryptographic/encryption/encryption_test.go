package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	for _, plaintext := range []string{
		"hello",
		"",
		"héllo wörld 🙂 多言語テキスト",
		"a somewhat longer message with\nnewlines and\ttabs",
	} {
		ciphertext, iv, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := Decrypt(ciphertext, iv, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	otherKey, err := GenerateKey()
	require.NoError(t, err)

	ciphertext, iv, err := Encrypt("secret", key)
	require.NoError(t, err)

	got, err := Decrypt(ciphertext, iv, otherKey)
	assert.ErrorIs(t, err, ErrUndecryptable)
	assert.Empty(t, got)
}

func TestDecryptMalformedInput(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	cases := []struct {
		name       string
		ciphertext string
		iv         string
	}{
		{"not base64", "%%%", "%%%"},
		{"empty", "", ""},
		{"iv wrong length", "aGVsbG8=", "aGVsbG8="},
		{"truncated ciphertext", "aA==", "AAAAAAAAAAAAAAAA"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decrypt(tc.ciphertext, tc.iv, key)
			assert.ErrorIs(t, err, ErrUndecryptable)
		})
	}
}

func TestDecryptWithBadKeySize(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	ciphertext, iv, err := Encrypt("secret", key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, iv, []byte("short"))
	assert.ErrorIs(t, err, ErrUndecryptable)
}

func TestIVUniqueness(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		_, iv, err := Encrypt("m", key)
		require.NoError(t, err)
		_, dup := seen[iv]
		require.False(t, dup, "IV collision after %d encryptions", i)
		seen[iv] = struct{}{}
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	blob, err := Seal(key, []byte("wrapped key material"))
	require.NoError(t, err)

	got, err := Open(key, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped key material"), got)

	_, err = Open(key, blob[:4])
	assert.Error(t, err)
}
