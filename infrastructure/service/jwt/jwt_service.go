package jwt

import (
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/valueobject"
)

const (
	AlgorithmRS256 = "RS256"
	AlgorithmEdDSA = "EdDSA"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported JWT algorithm")

// Config carries the key material. Keys are PEM encoded; PublicKeyPEM may be
// empty, in which case the public half is derived from the private key.
type Config struct {
	Algorithm     string
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
	Now           func() time.Time
}

// JWTService signs session tokens with an asymmetric key pair. It is immutable
// after construction and safe for concurrent use.
type JWTService struct {
	method    jwt.SigningMethod
	signKey   crypto.Signer
	verifyKey crypto.PublicKey
	publicPEM []byte
	now       func() time.Time
}

type sessionClaims struct {
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

func NewJWTService(cfg Config) (*JWTService, error) {
	service := &JWTService{now: cfg.Now}
	if service.now == nil {
		service.now = time.Now
	}

	switch strings.ToUpper(cfg.Algorithm) {
	case "", AlgorithmRS256:
		service.method = jwt.SigningMethodRS256
		key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
		}
		service.signKey = key
		service.verifyKey = &key.PublicKey
		if len(cfg.PublicKeyPEM) > 0 {
			pub, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
			}
			if !pub.Equal(&key.PublicKey) {
				return nil, errors.New("RSA public key does not match private key")
			}
		}
	case strings.ToUpper(AlgorithmEdDSA), "ED25519":
		service.method = jwt.SigningMethodEdDSA
		parsed, err := jwt.ParseEdPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ed25519 private key: %w", err)
		}
		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("invalid ed25519 private key type")
		}
		service.signKey = key
		service.verifyKey = key.Public()
		if len(cfg.PublicKeyPEM) > 0 {
			parsedPub, err := jwt.ParseEdPublicKeyFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("failed to parse ed25519 public key: %w", err)
			}
			pub, ok := parsedPub.(ed25519.PublicKey)
			if !ok || !pub.Equal(key.Public()) {
				return nil, errors.New("ed25519 public key does not match private key")
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}

	der, err := x509.MarshalPKIXPublicKey(service.verifyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	service.publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return service, nil
}

// Sign issues a token for subject. Every token carries a fresh jti so two
// tokens minted in the same second never share a value.
func (s *JWTService) Sign(subject string, groups []string, lifetime time.Duration) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Groups: groups,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	tokenString, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Decode verifies the signature and returns the claims. Time based claims are
// not validated here.
func (s *JWTService) Decode(tokenString string) (*valueobject.ClaimSet, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &sessionClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.verifyKey, nil
	})
	if err != nil {
		return nil, s.handleValidationError(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, domainerr.ErrInvalidToken
	}

	result := &valueobject.ClaimSet{
		ID:      claims.ID,
		Subject: claims.Subject,
		Groups:  claims.Groups,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	return result, nil
}

func (s *JWTService) PublicKey() []byte {
	out := make([]byte, len(s.publicPEM))
	copy(out, s.publicPEM)
	return out
}

// Algorithm returns the JWS alg header value in use.
func (s *JWTService) Algorithm() string {
	return s.method.Alg()
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return domainerr.ErrSignatureInvalid
	}
	return domainerr.ErrInvalidToken
}
