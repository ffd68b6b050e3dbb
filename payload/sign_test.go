package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/updatekit/payloadsign/sigblob"
	"github.com/updatekit/payloadsign/verify"
)

// Test keys under testdata were generated with:
//
//	openssl genrsa -out unittest_key.pem 2048
//	openssl rsa -in unittest_key.pem -pubout -out unittest_key.pub.pem
//
// and unittest_key.sig with:
//
//	printf 'This is some data to sign.' | openssl dgst -sha256 -binary |
//	  openssl pkeyutl -sign -inkey unittest_key.pem -pkeyopt digest:sha256
var (
	unittestKey1 = filepath.Join("testdata", "unittest_key.pem")
	unittestKey2 = filepath.Join("testdata", "unittest_key2.pem")
	unittestPub1 = filepath.Join("testdata", "unittest_key.pub.pem")
	unittestPub2 = filepath.Join("testdata", "unittest_key2.pub.pem")
	unittestSig1 = filepath.Join("testdata", "unittest_key.sig")
)

const dataToSign = "This is some data to sign."

// SHA-256 of dataToSign; fixed golden vector.
const dataToSignHashHex = "7a07a644088620a6c1f8d90205630db7fc2ba0a97c9d1d8c01f5786dc511b406"

func goldenDigest(t *testing.T) []byte {
	t.Helper()
	digest, err := hex.DecodeString(dataToSignHashHex)
	require.NoError(t, err)
	return digest
}

func mustPad(t *testing.T, digest []byte) []byte {
	t.Helper()
	padded, err := verify.PadRSA2048SHA256Hash(digest)
	require.NoError(t, err)
	return padded
}

// signSampleData predicts the blob length, signs the golden digest with the
// given keys and checks the prediction against the emitted blob.
func signSampleData(t *testing.T, keyPaths []string) []byte {
	t.Helper()
	length, err := SignatureBlobLength(keyPaths)
	require.NoError(t, err)
	require.Positive(t, length)

	blob, err := SignHashWithKeys(mustPad(t, goldenDigest(t)), keyPaths)
	require.NoError(t, err)
	require.EqualValues(t, length, len(blob))
	return blob
}

func TestGoldenDigest(t *testing.T) {
	digest := sha256.Sum256([]byte(dataToSign))
	require.Equal(t, goldenDigest(t), digest[:])
}

func TestSignSimpleText(t *testing.T) {
	blob := signSampleData(t, []string{unittestKey1})

	entries, err := sigblob.Unmarshal(blob)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, sigblob.EntryVersion, entries[0].Version)

	// Deterministic PKCS#1 v1.5 signing must reproduce the openssl-generated
	// signature byte for byte.
	golden, err := os.ReadFile(unittestSig1)
	require.NoError(t, err)
	require.Equal(t, golden, entries[0].Data)
}

func TestSignatureBlobLengthMatchesEmittedBlob(t *testing.T) {
	for _, keyPaths := range [][]string{
		{unittestKey1},
		{unittestKey1, unittestKey2},
	} {
		signSampleData(t, keyPaths)
	}
}

func TestVerifyAllSignatures(t *testing.T) {
	blob := signSampleData(t, []string{unittestKey1, unittestKey2})
	padded := mustPad(t, goldenDigest(t))

	// Either public key accepts the co-signed blob.
	for _, pubPath := range []string{unittestPub1, unittestPub2} {
		ok, err := verify.VerifySignature(blob, pubPath, padded)
		require.NoError(t, err)
		require.True(t, ok, "public key %s", pubPath)
	}
}

func TestVerifySignatureWrongKey(t *testing.T) {
	blob := signSampleData(t, []string{unittestKey1})
	padded := mustPad(t, goldenDigest(t))

	ok, err := verify.VerifySignature(blob, unittestPub1, padded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = verify.VerifySignature(blob, unittestPub2, padded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignHashWithKeysAllOrNothing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pem")
	blob, err := SignHashWithKeys(mustPad(t, goldenDigest(t)), []string{unittestKey1, missing})
	require.ErrorIs(t, err, ErrKeyUnreadable)
	require.Nil(t, blob)
}

func TestSignHashWithKeysRejectsUnpaddedHash(t *testing.T) {
	_, err := SignHashWithKeys(goldenDigest(t), []string{unittestKey1})
	require.ErrorIs(t, err, ErrInvalidDigestLength)
}

func TestSignatureBlobLengthNoKeys(t *testing.T) {
	_, err := SignatureBlobLength(nil)
	require.Error(t, err)
}

func TestSignMetadataHash(t *testing.T) {
	sig, err := SignMetadataHash(goldenDigest(t), unittestKey1)
	require.NoError(t, err)

	// Same digest, same key, same deterministic scheme as the payload
	// signature golden vector.
	golden, err := os.ReadFile(unittestSig1)
	require.NoError(t, err)
	require.Equal(t, golden, sig)

	_, err = SignMetadataHash(goldenDigest(t)[:16], unittestKey1)
	require.ErrorIs(t, err, ErrInvalidDigestLength)
}
