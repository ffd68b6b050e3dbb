package payload

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/updatekit/payloadsign/internal/rsapem"
	"github.com/updatekit/payloadsign/sigblob"
	"github.com/updatekit/payloadsign/verify"
)

// SignatureBlobLength returns the exact serialized length the signature blob
// would have if each key in keyPaths, in order, produced one entry. No
// cryptographic operation is performed; each key is loaded only to determine
// its modulus size class. The result is byte-identical to what
// SignHashWithKeys emits for the same key list.
func SignatureBlobLength(keyPaths []string) (uint64, error) {
	sizes, err := keySizes(keyPaths)
	if err != nil {
		return 0, err
	}
	return uint64(sigblob.EncodedLength(sizes)), nil
}

// SignHashWithKeys signs the pre-padded hash with each key in order and
// assembles the signature blob. The padded value is signed directly with
// PKCS#1 v1.5; no additional hashing or padding happens here. All-or-nothing:
// if any key fails, no partial blob is returned.
func SignHashWithKeys(paddedHash []byte, keyPaths []string) ([]byte, error) {
	if len(keyPaths) == 0 {
		return nil, fmt.Errorf("no signing keys supplied")
	}
	dig, err := digestFromPaddedHash(paddedHash)
	if err != nil {
		return nil, err
	}

	entries := make([]sigblob.Entry, 0, len(keyPaths))
	sizes := make([]int, 0, len(keyPaths))
	for _, path := range keyPaths {
		key, err := rsapem.LoadPrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("load signing key %q: %w", path, err)
		}
		// Signing the padded value with a raw RSA private-key transform is
		// identical to PKCS#1 v1.5 signing of the embedded digest, so the
		// hardened stdlib path can carry the operation.
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, dig)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrSigningBackend, path, err)
		}
		entries = append(entries, sigblob.Entry{Version: sigblob.EntryVersion, Data: sig})
		sizes = append(sizes, key.Size())
	}

	blob := sigblob.Marshal(entries)
	if len(blob) != sigblob.EncodedLength(sizes) {
		return nil, fmt.Errorf("%w: predicted blob length %d, emitted %d",
			ErrLayoutInvariant, sigblob.EncodedLength(sizes), len(blob))
	}
	return blob, nil
}

// SignMetadataHash signs the 32-byte metadata hash with a single key and
// returns the raw signature, for publication through the update server's
// out-of-band metadata-signature channel. Callers typically base64 it.
func SignMetadataHash(metadataHash []byte, keyPath string) ([]byte, error) {
	padded, err := verify.PadRSA2048SHA256Hash(metadataHash)
	if err != nil {
		return nil, err
	}
	dig, err := digestFromPaddedHash(padded)
	if err != nil {
		return nil, err
	}
	key, err := rsapem.LoadPrivateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key %q: %w", keyPath, err)
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, dig)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q: %v", ErrSigningBackend, keyPath, err)
	}
	return sig, nil
}

// VerifySignedPayload locates the signature blob embedded in the container
// at path, recomputes the expected padded hash and checks the blob against
// the public key. Structural problems (no blob, unreadable layout) are
// errors; a clean signature mismatch returns (false, nil).
func VerifySignedPayload(ctx context.Context, path, publicKeyPath string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPayloadIO, err)
	}
	layout, err := parseLayout(data)
	if err != nil {
		return false, err
	}
	if layout.Signatures.Length == 0 {
		return false, fmt.Errorf("%w: container carries no signature blob", ErrMalformedBlob)
	}
	blob := data[layout.Signatures.Offset : layout.Signatures.Offset+layout.Signatures.Length]

	hashes, err := hashWithPlaceholders(data, layout.MetadataSize, []ReservedRegion{layout.Signatures})
	if err != nil {
		return false, err
	}
	padded, err := verify.PadRSA2048SHA256Hash(hashes.PayloadHash)
	if err != nil {
		return false, err
	}

	ok, err := verify.VerifySignature(blob, publicKeyPath, padded)
	if err != nil {
		return false, err
	}
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "payload"))
	logger.Log(ctx, slog.LevelDebug, "verified signed payload",
		slog.String("path", path),
		slog.String("payload_hash", hashes.PayloadDigest().String()),
		slog.Bool("accepted", ok),
	)
	return ok, nil
}

func keySizes(keyPaths []string) ([]int, error) {
	if len(keyPaths) == 0 {
		return nil, fmt.Errorf("no signing keys supplied")
	}
	sizes := make([]int, 0, len(keyPaths))
	for _, path := range keyPaths {
		key, err := rsapem.LoadPrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("determine size class of key %q: %w", path, err)
		}
		sizes = append(sizes, key.Size())
	}
	return sizes, nil
}

// digestFromPaddedHash validates the PKCS#1 v1.5 structure of a padded hash
// and extracts the trailing raw digest.
func digestFromPaddedHash(paddedHash []byte) ([]byte, error) {
	want, err := verify.PadRSA2048SHA256Hash(paddedHash[max(0, len(paddedHash)-sha256.Size):])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(paddedHash, want) {
		return nil, fmt.Errorf("%w: value is not a PKCS#1 v1.5 padded SHA-256 hash", ErrInvalidDigestLength)
	}
	return paddedHash[len(paddedHash)-sha256.Size:], nil
}
