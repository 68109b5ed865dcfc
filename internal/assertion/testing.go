package assertion

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// TestKeyForTesting returns a process-wide 2048-bit RSA key and its PKCS#8
// PEM encoding. Key generation is slow, so the key is created once.
// This is intended for testing only; the package is internal, so external
// code cannot reach it.
func TestKeyForTesting() (*rsa.PrivateKey, []byte) {
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, MinKeyBits)
		if err != nil {
			panic(err)
		}
		testKey = key
	})

	der, err := x509.MarshalPKCS8PrivateKey(testKey)
	if err != nil {
		panic(err)
	}
	return testKey, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
