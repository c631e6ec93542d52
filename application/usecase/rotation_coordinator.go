package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

type RotateRequest struct {
	RefreshToken string
	DeviceID     uuid.UUID
	// OldAccessToken is optional. When present and owned by the same user it
	// is revoked along with the old refresh token.
	OldAccessToken string
}

// SessionResult is a freshly opened session.
type SessionResult struct {
	User            *entity.User
	Access          *entity.Token
	Refresh         *entity.Token
	RefreshLifetime time.Duration
}

// RotationCoordinator exchanges a device bound refresh token for a new pair.
type RotationCoordinator struct {
	tokens  outbound.TokenRepository
	users   outbound.UserRepository
	factory *TokenFactory
	purger  *tokenPurger
	metrics outbound.LifecycleMetrics
	logger  logger.Logger
	now     func() time.Time
}

func NewRotationCoordinator(
	tokens outbound.TokenRepository,
	users outbound.UserRepository,
	factory *TokenFactory,
	metrics outbound.LifecycleMetrics,
	log logger.Logger,
	now func() time.Time,
) *RotationCoordinator {
	if metrics == nil {
		metrics = outbound.NoopMetrics()
	}
	if now == nil {
		now = time.Now
	}
	return &RotationCoordinator{
		tokens:  tokens,
		users:   users,
		factory: factory,
		purger:  &tokenPurger{tokens: tokens, metrics: metrics, logger: log},
		metrics: metrics,
		logger:  log,
		now:     now,
	}
}

func (c *RotationCoordinator) Rotate(ctx context.Context, req RotateRequest) (*SessionResult, error) {
	start := c.now()
	ip := ClientIPFromContext(ctx)

	if req.RefreshToken == "" || req.DeviceID == uuid.Nil {
		return nil, domainerr.ErrInvalidRequest
	}

	refresh, err := c.lookupRefresh(ctx, req)
	if err != nil {
		return nil, err
	}

	if refresh.IsExpiredAt(c.now()) {
		_ = c.purger.purge(ctx, refresh, purgeExpired)
		logger.LogAuthEvent(ctx, c.logger, "refresh_token_expired", refresh.OwnerID, ip, false, nil)
		return nil, domainerr.ErrExpired
	}

	user, err := c.users.FindByID(ctx, refresh.OwnerID)
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			_ = c.purger.purge(ctx, refresh, purgeOrphaned)
			logger.LogAuthEvent(ctx, c.logger, "refresh_owner_missing", refresh.OwnerID, ip, false, nil)
			return nil, domainerr.ErrUserNotFound
		}
		c.logger.Error(ctx, "Failed to load refresh token owner", err, map[string]interface{}{
			"user_id": refresh.OwnerID,
		})
		return nil, domainerr.Persistence("find refresh owner", err)
	}

	// Only the request that actually removes the refresh token may mint. A
	// store failure stays best-effort.
	if err := c.purger.consume(ctx, refresh, purgeRotated); errors.Is(err, domainerr.ErrTokenNotFound) {
		logger.LogAuthEvent(ctx, c.logger, "refresh_token_reused", refresh.OwnerID, ip, false, nil)
		return nil, err
	}

	newRefresh, err := c.factory.Mint(ctx, user, entity.TokenKindRefresh, false, uuid.Nil)
	if err != nil {
		return nil, err
	}
	newRefresh, err = c.factory.BindDevice(ctx, newRefresh, req.DeviceID)
	if err != nil {
		return nil, err
	}

	access, err := c.factory.Mint(ctx, user, entity.TokenKindAccess, true, req.DeviceID)
	if err != nil {
		return nil, err
	}

	c.revokeOldAccess(ctx, user, req.OldAccessToken)

	c.metrics.RotationCompleted()
	logger.LogAuthEvent(ctx, c.logger, "token_refresh", user.ID, ip, true, map[string]interface{}{
		"refresh_token": logger.Redacted,
	})
	logger.LogPerformance(ctx, c.logger, "refresh_rotation", c.now().Sub(start), nil)

	return &SessionResult{
		User:            user,
		Access:          access,
		Refresh:         newRefresh,
		RefreshLifetime: c.factory.Lifetime(entity.TokenKindRefresh),
	}, nil
}

// lookupRefresh finds the refresh token for the requesting device. A token
// that exists but is bound to another device was presented by the wrong
// client and is revoked.
func (c *RotationCoordinator) lookupRefresh(ctx context.Context, req RotateRequest) (*entity.Token, error) {
	refresh, err := c.tokens.FindByValueAndDevice(ctx, entity.TokenKindRefresh, req.RefreshToken, req.DeviceID)
	if err == nil {
		return refresh, nil
	}
	if !errors.Is(err, outbound.ErrTokenNotFound) {
		c.logger.Error(ctx, "Failed to look up refresh token", err, nil)
		return nil, domainerr.Persistence("find refresh token", err)
	}

	foreign, err := c.tokens.FindByValue(ctx, entity.TokenKindRefresh, req.RefreshToken)
	if err != nil {
		if errors.Is(err, outbound.ErrTokenNotFound) {
			c.metrics.ValidationFailed("refresh_not_found")
			logger.LogAuthEvent(ctx, c.logger, "refresh_token_unknown", "", ClientIPFromContext(ctx), false, map[string]interface{}{
				"refresh_token": logger.Redacted,
			})
			return nil, domainerr.ErrTokenNotFound
		}
		c.logger.Error(ctx, "Failed to look up refresh token", err, nil)
		return nil, domainerr.Persistence("find refresh token", err)
	}

	_ = c.purger.purge(ctx, foreign, purgeMismatch)
	c.metrics.ValidationFailed("device_mismatch")
	logger.LogSecurityEvent(ctx, c.logger, "refresh_token_device_mismatch", "HIGH", map[string]interface{}{
		"user_id":  foreign.OwnerID,
		"token_id": foreign.ID,
		"ip":       ClientIPFromContext(ctx),
	})
	return nil, domainerr.ErrDeviceMismatch
}

func (c *RotationCoordinator) revokeOldAccess(ctx context.Context, user *entity.User, value string) {
	if value == "" {
		return
	}

	old, err := c.tokens.FindByValue(ctx, entity.TokenKindAccess, value)
	if err != nil {
		if !errors.Is(err, outbound.ErrTokenNotFound) {
			c.logger.Warn(ctx, "Failed to look up previous access token", map[string]interface{}{
				"user_id": user.ID,
				"error":   err.Error(),
			})
		}
		return
	}

	if old.OwnerID != user.ID {
		logger.LogSecurityEvent(ctx, c.logger, "foreign_access_token_on_refresh", "MEDIUM", map[string]interface{}{
			"user_id":  user.ID,
			"owner_id": old.OwnerID,
		})
		return
	}

	_ = c.purger.purge(ctx, old, purgeRotated)
}
