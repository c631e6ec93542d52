package outbound

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
)

var (
	ErrTokenNotFound      = domainerr.ErrTokenNotFound
	ErrTokenAlreadyExists = errors.New("token value already exists")
)

// TokenRepository is the single store for every token kind. Implementations
// must be safe for concurrent use and must enforce uniqueness of Value.
type TokenRepository interface {
	// Save inserts or updates by ID and assigns an ID when it is empty.
	Save(ctx context.Context, token *entity.Token) (*entity.Token, error)
	FindByValue(ctx context.Context, kind entity.TokenKind, value string) (*entity.Token, error)
	FindByValueAndDevice(ctx context.Context, kind entity.TokenKind, value string, deviceID uuid.UUID) (*entity.Token, error)
	FindAllForOwner(ctx context.Context, kind entity.TokenKind, ownerID string) ([]*entity.Token, error)
	FindAllForOwnerAndDevice(ctx context.Context, kind entity.TokenKind, ownerID string, deviceID uuid.UUID) ([]*entity.Token, error)
	// Delete is idempotent.
	Delete(ctx context.Context, token *entity.Token) error
	// Consume deletes a single-use token. It returns ErrTokenNotFound when the
	// token was already gone, so of several concurrent callers exactly one
	// succeeds.
	Consume(ctx context.Context, token *entity.Token) error
	DeleteAllForOwner(ctx context.Context, ownerID string) error
}
