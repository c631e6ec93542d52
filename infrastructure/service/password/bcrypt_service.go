// Package password stores account passwords as bcrypt digests.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mentorclub/auth-service/domain/valueobject"
)

var ErrEmptyPassword = errors.New("password cannot be empty")

// BcryptPasswordService implements outbound.PasswordService.
type BcryptPasswordService struct {
	cost int
}

// NewBcryptPasswordService uses bcrypt.DefaultCost for a cost bcrypt rejects.
func NewBcryptPasswordService(cost int) *BcryptPasswordService {
	s := &BcryptPasswordService{cost: bcrypt.DefaultCost}
	if bcrypt.MinCost <= cost && cost <= bcrypt.MaxCost {
		s.cost = cost
	}
	return s
}

func (s *BcryptPasswordService) HashPassword(plain string) (string, error) {
	switch {
	case plain == "":
		return "", ErrEmptyPassword
	case len(plain) > valueobject.MaxPasswordBytes:
		return "", valueobject.ErrPasswordTooLong
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt digest: %w", err)
	}
	return string(digest), nil
}

// VerifyPassword reports false without error on a plain mismatch. Input
// longer than any stored password can be is a mismatch too.
func (s *BcryptPasswordService) VerifyPassword(plain, digest string) (bool, error) {
	if plain == "" || digest == "" {
		return false, ErrEmptyPassword
	}
	if len(plain) > valueobject.MaxPasswordBytes {
		return false, nil
	}

	switch err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)); {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt compare: %w", err)
	}
}
