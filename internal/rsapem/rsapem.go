// Package rsapem loads RSA key material from PEM files. Key files are opaque
// credentials referenced by path; callers never inspect key bytes directly.
package rsapem

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// PEM block types accepted by the loaders.
const (
	pemPKCS1PrivateKey = "RSA PRIVATE KEY"
	pemPKCS8PrivateKey = "PRIVATE KEY"
	pemPKIXPublicKey   = "PUBLIC KEY"
	pemPKCS1PublicKey  = "RSA PUBLIC KEY"
	pemCertificate     = "CERTIFICATE"
)

var (
	// ErrKeyUnreadable indicates the key file could not be read at all.
	ErrKeyUnreadable = errors.New("key file unreadable")
	// ErrKeyMalformed indicates the file was read but no RSA key could be
	// parsed from it.
	ErrKeyMalformed = errors.New("key file malformed")
)

// LoadPrivateKey reads and parses an RSA private key from a PEM file.
// PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") containers are
// supported; concatenated PEM data is scanned for the first RSA key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnreadable, err)
	}
	key := parsePrivateKeyPEM(pemBytes)
	if key == nil {
		return nil, fmt.Errorf("%w: no RSA private key in %q", ErrKeyMalformed, path)
	}
	return key, nil
}

// LoadPublicKey reads and parses an RSA public key from a PEM file. PKIX
// ("PUBLIC KEY"), PKCS#1 ("RSA PUBLIC KEY") and certificate ("CERTIFICATE")
// containers are supported.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnreadable, err)
	}
	key := parsePublicKeyPEM(pemBytes)
	if key == nil {
		return nil, fmt.Errorf("%w: no RSA public key in %q", ErrKeyMalformed, path)
	}
	return key, nil
}

func parsePrivateKeyPEM(pemBytes []byte) *rsa.PrivateKey {
	for len(pemBytes) > 0 {
		block, rest := pem.Decode(pemBytes)
		if block == nil {
			break
		}
		switch block.Type {
		case pemPKCS1PrivateKey:
			if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
				return k
			}
		case pemPKCS8PrivateKey:
			if anyKey, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
				if k, ok := anyKey.(*rsa.PrivateKey); ok {
					return k
				}
			}
		}
		pemBytes = rest
	}
	return nil
}

func parsePublicKeyPEM(pemBytes []byte) *rsa.PublicKey {
	for len(pemBytes) > 0 {
		block, rest := pem.Decode(pemBytes)
		if block == nil {
			break
		}
		switch block.Type {
		case pemPKIXPublicKey:
			if k, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
				if pk, ok := k.(*rsa.PublicKey); ok {
					return pk
				}
			}
		case pemPKCS1PublicKey:
			if pk, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
				return pk
			}
		case pemCertificate:
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				if pk, ok := cert.PublicKey.(*rsa.PublicKey); ok {
					return pk
				}
			}
		}
		pemBytes = rest
	}
	return nil
}
