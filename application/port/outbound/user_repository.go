package outbound

import (
	"context"

	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
)

var (
	ErrUserNotFound      = domainerr.ErrUserNotFound
	ErrUserAlreadyExists = domainerr.ErrUserAlreadyExists
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	// Save inserts a new user or updates an existing one by ID.
	Save(ctx context.Context, user *entity.User) error
	Delete(ctx context.Context, id string) error
}
