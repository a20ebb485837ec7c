package keystore

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"lrnchat/internal/cryptographic/encryption"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path, passphrase string) *Keystore {
	t.Helper()
	ks, err := Open(path, passphrase)
	require.NoError(t, err)
	t.Cleanup(func() { ks.Close() })
	return ks
}

func TestKeyForGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.db")
	ks := openTestStore(t, path, "pass")

	key, err := ks.KeyFor("c1")
	require.NoError(t, err)
	require.Len(t, key, encryption.KeySize)

	again, err := ks.KeyFor("c1")
	require.NoError(t, err)
	assert.Equal(t, key, again)

	other, err := ks.KeyFor("c2")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestKeySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.db")

	ks := openTestStore(t, path, "pass")
	key, err := ks.KeyFor("c1")
	require.NoError(t, err)
	require.NoError(t, ks.Close())

	reopened := openTestStore(t, path, "pass")
	got, err := reopened.KeyFor("c1")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestWrongPassphraseCannotUnwrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.db")

	ks := openTestStore(t, path, "pass")
	_, err := ks.KeyFor("c1")
	require.NoError(t, err)
	require.NoError(t, ks.Close())

	wrong := openTestStore(t, path, "other")
	_, err = wrong.KeyFor("c1")
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	deviceA := openTestStore(t, filepath.Join(dir, "a.db"), "pass-a")
	deviceB := openTestStore(t, filepath.Join(dir, "b.db"), "pass-b")

	encoded, err := deviceA.ExportKey("c1")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Len(t, raw, encryption.KeySize)

	// Without the import the two devices hold different keys by design.
	keyB, err := deviceB.KeyFor("c1")
	require.NoError(t, err)
	assert.NotEqual(t, raw, keyB)

	require.NoError(t, deviceB.ImportKey("c1", encoded))
	keyB, err = deviceB.KeyFor("c1")
	require.NoError(t, err)
	assert.Equal(t, raw, keyB)
}

func TestImportRejectsBadEncoding(t *testing.T) {
	ks := openTestStore(t, filepath.Join(t.TempDir(), "keystore.db"), "pass")

	assert.ErrorIs(t, ks.ImportKey("c1", "%%%"), ErrBadKeyEncoding)
	assert.ErrorIs(t, ks.ImportKey("c1", base64.StdEncoding.EncodeToString([]byte("short"))), ErrBadKeyEncoding)
}

func TestEncryptionAcrossDevicesWithSharedKey(t *testing.T) {
	dir := t.TempDir()
	deviceA := openTestStore(t, filepath.Join(dir, "a.db"), "pass-a")
	deviceB := openTestStore(t, filepath.Join(dir, "b.db"), "pass-b")

	encoded, err := deviceA.ExportKey("c1")
	require.NoError(t, err)
	require.NoError(t, deviceB.ImportKey("c1", encoded))

	keyA, err := deviceA.KeyFor("c1")
	require.NoError(t, err)
	keyB, err := deviceB.KeyFor("c1")
	require.NoError(t, err)

	ciphertext, iv, err := encryption.Encrypt("hello from A", keyA)
	require.NoError(t, err)
	plaintext, err := encryption.Decrypt(ciphertext, iv, keyB)
	require.NoError(t, err)
	assert.Equal(t, "hello from A", plaintext)
}
