package rsapem

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePEM(t *testing.T, name, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600))
	return path
}

func TestLoadPrivateKeyContainers(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	tests := []struct {
		name      string
		blockType string
		der       []byte
	}{
		{"pkcs1", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)},
		{"pkcs8", "PRIVATE KEY", pkcs8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePEM(t, "key.pem", tc.blockType, tc.der)
			got, err := LoadPrivateKey(path)
			require.NoError(t, err)
			require.True(t, got.Equal(key))
		})
	}
}

func TestLoadPublicKeyContainers(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name      string
		blockType string
		der       []byte
	}{
		{"pkix", "PUBLIC KEY", pkix},
		{"pkcs1", "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&key.PublicKey)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePEM(t, "key.pub.pem", tc.blockType, tc.der)
			got, err := LoadPublicKey(path)
			require.NoError(t, err)
			require.True(t, got.Equal(&key.PublicKey))
		})
	}
}

func TestLoadKeyErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pem")
	_, err := LoadPrivateKey(missing)
	require.ErrorIs(t, err, ErrKeyUnreadable)
	_, err = LoadPublicKey(missing)
	require.ErrorIs(t, err, ErrKeyUnreadable)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem at all"), 0o600))
	_, err = LoadPrivateKey(garbage)
	require.ErrorIs(t, err, ErrKeyMalformed)
	_, err = LoadPublicKey(garbage)
	require.ErrorIs(t, err, ErrKeyMalformed)
}
