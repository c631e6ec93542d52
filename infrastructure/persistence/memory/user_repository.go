package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewUserRepository() outbound.UserRepository {
	return &userRepository{users: make(map[string]*entity.User)}
}

func (r *userRepository) FindByID(_ context.Context, id string) (*entity.User, error) {
	return r.find(func(u *entity.User) bool { return u.ID == id })
}

func (r *userRepository) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	return r.find(func(u *entity.User) bool { return u.Username == username })
}

// FindByEmail matches case-insensitively, like the postgres lookup.
func (r *userRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	return r.find(func(u *entity.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *userRepository) Save(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if existing.Username == user.Username || strings.EqualFold(existing.Email, user.Email) {
			return outbound.ErrUserAlreadyExists
		}
	}

	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *userRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return outbound.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *userRepository) find(match func(*entity.User) bool) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if match(user) {
			c := *user
			return &c, nil
		}
	}
	return nil, outbound.ErrUserNotFound
}
