package outbound

import (
	"time"

	"github.com/mentorclub/auth-service/domain/valueobject"
)

// TokenSigner signs and verifies session tokens with an asymmetric key pair.
type TokenSigner interface {
	Sign(subject string, groups []string, lifetime time.Duration) (string, error)
	// Decode verifies the signature and returns the claims. It does not
	// enforce the exp claim.
	Decode(token string) (*valueobject.ClaimSet, error)
	// PublicKey returns the PEM encoded verification key.
	PublicKey() []byte
}
