// Package memory keeps users and tokens in process memory. It backs the test
// suites and the single instance development mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

type tokenRepository struct {
	mu      sync.RWMutex
	byID    map[string]*entity.Token
	byValue map[string]string
}

func NewTokenRepository() outbound.TokenRepository {
	return &tokenRepository{
		byID:    make(map[string]*entity.Token),
		byValue: make(map[string]string),
	}
}

func (r *tokenRepository) Save(_ context.Context, token *entity.Token) (*entity.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token.ID == "" {
		token.ID = ulid.Make().String()
	}
	// A stored token only ever gains its device binding.
	if stored, ok := r.byID[token.ID]; ok {
		if stored.DeviceID == nil && token.DeviceID != nil {
			device := *token.DeviceID
			stored.DeviceID = &device
		}
		return cloneToken(stored), nil
	}
	if _, ok := r.byValue[token.Value]; ok {
		return nil, outbound.ErrTokenAlreadyExists
	}

	r.byID[token.ID] = cloneToken(token)
	r.byValue[token.Value] = token.ID

	return cloneToken(token), nil
}

func (r *tokenRepository) FindByValue(_ context.Context, kind entity.TokenKind, value string) (*entity.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byValue[value]
	if !ok {
		return nil, outbound.ErrTokenNotFound
	}
	token := r.byID[id]
	if token.Kind != kind {
		return nil, outbound.ErrTokenNotFound
	}
	return cloneToken(token), nil
}

func (r *tokenRepository) FindByValueAndDevice(ctx context.Context, kind entity.TokenKind, value string, deviceID uuid.UUID) (*entity.Token, error) {
	token, err := r.FindByValue(ctx, kind, value)
	if err != nil {
		return nil, err
	}
	if !token.BoundTo(deviceID) {
		return nil, outbound.ErrTokenNotFound
	}
	return token, nil
}

func (r *tokenRepository) FindAllForOwner(_ context.Context, kind entity.TokenKind, ownerID string) ([]*entity.Token, error) {
	return r.filter(func(t *entity.Token) bool {
		return t.Kind == kind && t.OwnerID == ownerID
	}), nil
}

func (r *tokenRepository) FindAllForOwnerAndDevice(_ context.Context, kind entity.TokenKind, ownerID string, deviceID uuid.UUID) ([]*entity.Token, error) {
	return r.filter(func(t *entity.Token) bool {
		return t.Kind == kind && t.OwnerID == ownerID && t.BoundTo(deviceID)
	}), nil
}

func (r *tokenRepository) Delete(_ context.Context, token *entity.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteLocked(token.ID)
	return nil
}

func (r *tokenRepository) Consume(_ context.Context, token *entity.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.deleteLocked(token.ID) {
		return outbound.ErrTokenNotFound
	}
	return nil
}

func (r *tokenRepository) DeleteAllForOwner(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, token := range r.byID {
		if token.OwnerID == ownerID {
			r.deleteLocked(id)
		}
	}
	return nil
}

func (r *tokenRepository) deleteLocked(id string) bool {
	stored, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byValue, stored.Value)
	delete(r.byID, id)
	return true
}

// filter returns matching tokens oldest first.
func (r *tokenRepository) filter(match func(*entity.Token) bool) []*entity.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Token
	for _, token := range r.byID {
		if match(token) {
			out = append(out, cloneToken(token))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneToken(t *entity.Token) *entity.Token {
	c := *t
	if t.DeviceID != nil {
		id := *t.DeviceID
		c.DeviceID = &id
	}
	return &c
}
