// Package verify implements the device-side acceptance check for OTA payload
// signatures: PKCS#1 v1.5 hash padding and the any-of check of a signature
// blob against a single trusted public key. The same code runs as a
// self-check on the signing side, so it must stay bit-exact with the padding
// the signer produces.
package verify

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"

	"github.com/updatekit/payloadsign/internal/rsapem"
	"github.com/updatekit/payloadsign/sigblob"
)

// RSA2048ModulusSize is the modulus byte size of the supported key class.
// Any extension to other key sizes must generalize this constant together
// with the padding below.
const RSA2048ModulusSize = 256

// ErrInvalidDigestLength indicates a digest that is not exactly
// sha256.Size bytes.
var ErrInvalidDigestLength = errors.New("invalid digest length")

// sha256DigestInfoPrefix is the ASN.1 DigestInfo header for SHA-256
// (RFC 8017, section 9.2).
var sha256DigestInfoPrefix = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// PadRSA2048SHA256Hash wraps a raw SHA-256 digest into the full 256-byte
// PKCS#1 v1.5 encoded message an RSA-2048 signature decrypts to:
//
//	0x00 0x01 PS 0x00 DigestInfo(SHA-256) digest
//
// where PS is 0xff filler. The result length always equals
// RSA2048ModulusSize regardless of input content.
func PadRSA2048SHA256Hash(digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidDigestLength, len(digest), sha256.Size)
	}
	padded := make([]byte, 0, RSA2048ModulusSize)
	padded = append(padded, 0x00, 0x01)
	fillerLen := RSA2048ModulusSize - len(sha256DigestInfoPrefix) - sha256.Size - 3
	for i := 0; i < fillerLen; i++ {
		padded = append(padded, 0xff)
	}
	padded = append(padded, 0x00)
	padded = append(padded, sha256DigestInfoPrefix...)
	padded = append(padded, digest...)
	return padded, nil
}

// VerifySignature decodes blob and checks whether any contained entry
// validates against the public key at publicKeyPath: for each entry the raw
// RSA public-key transform is applied and the recovered value compared to
// expected. A blob that fails to decode or contains no entries is an error;
// a clean mismatch returns (false, nil). Wrong key and wrong content are
// deliberately indistinguishable to the caller.
func VerifySignature(blob []byte, publicKeyPath string, expected []byte) (bool, error) {
	entries, err := sigblob.Unmarshal(blob)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, fmt.Errorf("%w: no signature entries", sigblob.ErrMalformedBlob)
	}
	pub, err := rsapem.LoadPublicKey(publicKeyPath)
	if err != nil {
		return false, err
	}
	// A payload may be co-signed by several keys (key-rotation windows); a
	// verifier holding any one of the matching public keys must accept it.
	for _, entry := range entries {
		if entryMatches(pub.N, pub.E, entry.Data, expected) {
			return true, nil
		}
	}
	return false, nil
}

// entryMatches performs sig^e mod n, left-pads the result to the modulus
// size and compares it against the expected encoded message.
func entryMatches(n *big.Int, e int, sig, expected []byte) bool {
	size := (n.BitLen() + 7) / 8
	if len(sig) != size || len(expected) != size {
		return false
	}
	s := new(big.Int).SetBytes(sig)
	if s.Cmp(n) >= 0 {
		return false
	}
	recovered := new(big.Int).Exp(s, big.NewInt(int64(e)), n).FillBytes(make([]byte, size))
	return subtle.ConstantTimeCompare(recovered, expected) == 1
}
