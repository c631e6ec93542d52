package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/domain/valueobject"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

// LifetimePolicy maps each token kind to its lifetime.
type LifetimePolicy map[entity.TokenKind]time.Duration

// DefaultLifetimes are used for any kind the configuration leaves unset.
var DefaultLifetimes = LifetimePolicy{
	entity.TokenKindAccess:       15 * time.Minute,
	entity.TokenKindRefresh:      30 * 24 * time.Hour,
	entity.TokenKindEmailConfirm: 24 * time.Hour,
}

func (p LifetimePolicy) Lifetime(kind entity.TokenKind) time.Duration {
	if d, ok := p[kind]; ok && d > 0 {
		return d
	}
	return DefaultLifetimes[kind]
}

// TokenFactory signs and persists new tokens.
type TokenFactory struct {
	tokens    outbound.TokenRepository
	signer    outbound.TokenSigner
	lifetimes LifetimePolicy
	metrics   outbound.LifecycleMetrics
	logger    logger.Logger
	now       func() time.Time
}

func NewTokenFactory(
	tokens outbound.TokenRepository,
	signer outbound.TokenSigner,
	lifetimes LifetimePolicy,
	metrics outbound.LifecycleMetrics,
	log logger.Logger,
	now func() time.Time,
) *TokenFactory {
	if metrics == nil {
		metrics = outbound.NoopMetrics()
	}
	if now == nil {
		now = time.Now
	}
	return &TokenFactory{
		tokens:    tokens,
		signer:    signer,
		lifetimes: lifetimes,
		metrics:   metrics,
		logger:    log,
		now:       now,
	}
}

func (f *TokenFactory) Lifetime(kind entity.TokenKind) time.Duration {
	return f.lifetimes.Lifetime(kind)
}

// Mint signs a token for owner and stores it. The device binding is left
// unset unless bindDeviceNow is true.
func (f *TokenFactory) Mint(ctx context.Context, owner *entity.User, kind entity.TokenKind, bindDeviceNow bool, deviceID uuid.UUID) (*entity.Token, error) {
	if !kind.Valid() || (bindDeviceNow && !kind.DeviceScoped()) {
		return nil, domainerr.ErrInvalidRequest
	}

	lifetime := f.Lifetime(kind)
	value, err := f.signer.Sign(owner.Username, valueobject.DefaultGroups, lifetime)
	if err != nil {
		return nil, fmt.Errorf("sign %s token: %w", kind, err)
	}

	now := f.now()
	token := entity.NewToken(kind, owner.ID, value, now, now.Add(lifetime))
	if bindDeviceNow {
		if err := token.BindDevice(deviceID); err != nil {
			return nil, err
		}
	}

	saved, err := f.tokens.Save(ctx, token)
	if err != nil {
		f.logger.Error(ctx, "Failed to store token", err, map[string]interface{}{
			"kind":    kind.String(),
			"user_id": owner.ID,
		})
		return nil, domainerr.Persistence("save token", err)
	}

	f.metrics.TokenMinted(kind)
	f.logger.Debug(ctx, "Token minted", map[string]interface{}{
		"kind":     kind.String(),
		"token_id": saved.ID,
		"user_id":  owner.ID,
		"bound":    saved.DeviceID != nil,
	})

	return saved, nil
}

// BindDevice sets the device on an unbound token and stores it again.
func (f *TokenFactory) BindDevice(ctx context.Context, token *entity.Token, deviceID uuid.UUID) (*entity.Token, error) {
	if err := token.BindDevice(deviceID); err != nil {
		return nil, err
	}

	saved, err := f.tokens.Save(ctx, token)
	if err != nil {
		f.logger.Error(ctx, "Failed to bind token to device", err, map[string]interface{}{
			"kind":     token.Kind.String(),
			"token_id": token.ID,
		})
		return nil, domainerr.Persistence("bind token device", err)
	}

	return saved, nil
}
