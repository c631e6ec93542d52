package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

const rsaKeyBits = 2048

// GenerateKeyPairPEM creates a fresh signing key pair for alg and returns the
// private and public halves PEM encoded.
func GenerateKeyPairPEM(alg string) (privatePEM, publicPEM []byte, err error) {
	switch strings.ToUpper(alg) {
	case "", AlgorithmRS256:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		privatePEM = pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		publicPEM, err = encodePublicKey(&key.PublicKey)
		return privatePEM, publicPEM, err
	case strings.ToUpper(AlgorithmEdDSA), "ED25519":
		pub, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode ed25519 key: %w", err)
		}
		privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
		publicPEM, err = encodePublicKey(pub)
		return privatePEM, publicPEM, err
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

func encodePublicKey(pub interface{}) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
