package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func envKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestServiceFromEnvKeyRoundtrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, envKey(t))

	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)
	require.True(t, svc.Enabled())
	require.Equal(t, "env:"+EncryptionKeyEnv, svc.KeySource())

	ciphertext, nonce, err := svc.Encrypt([]byte("ghp_private_token"))
	require.NoError(t, err)
	require.NotContains(t, string(ciphertext), "ghp_private_token")

	plaintext, err := svc.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	require.Equal(t, "ghp_private_token", string(plaintext))
}

func TestServiceRejectsBadEnvKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "too-short")
	_, err := NewServiceFromEnv("")
	require.Error(t, err)
}

func TestServiceGeneratesKeyFileOnFirstRun(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "")
	keyPath := filepath.Join(t.TempDir(), "keys", "enc.key")

	svc, err := NewServiceFromEnv(keyPath)
	require.NoError(t, err)
	require.Equal(t, "file:"+keyPath, svc.KeySource())

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A second service loading the same file can decrypt what the first sealed.
	ciphertext, nonce, err := svc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	again, err := NewServiceFromEnv(keyPath)
	require.NoError(t, err)
	plaintext, err := again.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	require.Equal(t, "secret", string(plaintext))
}

func TestServiceDecryptTamperDetected(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, envKey(t))
	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)

	ciphertext, nonce, err := svc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = svc.Decrypt(ciphertext, nonce)
	require.Error(t, err)
}
