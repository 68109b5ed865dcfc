package assertion

import (
	"crypto/rsa"
	"encoding/pem"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pkcs12"

	"github.com/forcekit/client-go/internal/apierrors"
)

// MinKeyBits is the smallest RSA modulus accepted for RS256 signing.
const MinKeyBits = 2048

// ParsePrivateKeyPEM parses a PEM encoded RSA private key in PKCS#1 or PKCS#8 form.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &apierrors.SigningError{Message: "private key is empty"}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(normalizePEM(data))
	if err != nil {
		return nil, &apierrors.SigningError{Message: "parse private key", Err: err}
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParsePKCS12 extracts the RSA private key from a PKCS#12 (.p12/.pfx) archive.
// Certificate chains in the archive are ignored.
func ParsePKCS12(data []byte, password string) (*rsa.PrivateKey, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, &apierrors.SigningError{Message: "decode pkcs12 archive", Err: err}
	}

	for _, block := range blocks {
		if !strings.Contains(block.Type, "PRIVATE KEY") {
			continue
		}
		return ParsePrivateKeyPEM(pem.EncodeToMemory(block))
	}
	return nil, &apierrors.SigningError{Message: "pkcs12 archive contains no private key"}
}

func checkKey(key *rsa.PrivateKey) error {
	if key.N.BitLen() < MinKeyBits {
		return &apierrors.SigningError{Message: "private key is shorter than 2048 bits"}
	}
	if err := key.Validate(); err != nil {
		return &apierrors.SigningError{Message: "private key failed validation", Err: err}
	}
	return nil
}

// normalizePEM restores line breaks in keys passed through environment
// variables as a single line with literal "\n" sequences.
func normalizePEM(data []byte) []byte {
	s := string(data)
	if !strings.Contains(s, "\n") && strings.Contains(s, `\n`) {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return []byte(strings.TrimSpace(s) + "\n")
}
