package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

// Purge reasons, also used as metric labels.
const (
	purgeExpired     = "expired"
	purgeRotated     = "rotated"
	purgeLogin       = "login"
	purgeLogout      = "logout"
	purgeConsumed    = "consumed"
	purgeMismatch    = "device_mismatch"
	purgeOrphaned    = "orphaned"
	purgeAccountGone = "account_deleted"
)

// tokenPurger deletes tokens and logs failures. Every method returns the
// failure so the caller can decide whether it is fatal; most ignore it.
type tokenPurger struct {
	tokens  outbound.TokenRepository
	metrics outbound.LifecycleMetrics
	logger  logger.Logger
}

func (p *tokenPurger) purge(ctx context.Context, token *entity.Token, reason string) error {
	if err := p.tokens.Delete(ctx, token); err != nil {
		p.logger.Warn(ctx, "Failed to delete token", map[string]interface{}{
			"kind":     token.Kind.String(),
			"token_id": token.ID,
			"reason":   reason,
			"error":    err.Error(),
		})
		return domainerr.Persistence("delete token", err)
	}

	p.metrics.TokenPurged(token.Kind, reason)
	return nil
}

// consume spends a single-use token. Losing a race to another request gives
// domainerr.ErrTokenNotFound; a store failure gives ErrPersistence.
func (p *tokenPurger) consume(ctx context.Context, token *entity.Token, reason string) error {
	if err := p.tokens.Consume(ctx, token); err != nil {
		if errors.Is(err, outbound.ErrTokenNotFound) {
			logger.LogSecurityEvent(ctx, p.logger, "token_already_consumed", "MEDIUM", map[string]interface{}{
				"kind":     token.Kind.String(),
				"token_id": token.ID,
				"user_id":  token.OwnerID,
			})
			return domainerr.ErrTokenNotFound
		}
		p.logger.Warn(ctx, "Failed to consume token", map[string]interface{}{
			"kind":     token.Kind.String(),
			"token_id": token.ID,
			"reason":   reason,
			"error":    err.Error(),
		})
		return domainerr.Persistence("consume token", err)
	}

	p.metrics.TokenPurged(token.Kind, reason)
	return nil
}

// purgeDevice removes the owner's tokens of the given kinds bound to deviceID.
func (p *tokenPurger) purgeDevice(ctx context.Context, ownerID string, deviceID uuid.UUID, reason string, kinds ...entity.TokenKind) error {
	var errs []error
	for _, kind := range kinds {
		tokens, err := p.tokens.FindAllForOwnerAndDevice(ctx, kind, ownerID, deviceID)
		if err != nil {
			p.logger.Warn(ctx, "Failed to list device tokens", map[string]interface{}{
				"kind":    kind.String(),
				"user_id": ownerID,
				"error":   err.Error(),
			})
			errs = append(errs, domainerr.Persistence("list device tokens", err))
			continue
		}
		for _, token := range tokens {
			if err := p.purge(ctx, token, reason); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (p *tokenPurger) purgeOwner(ctx context.Context, ownerID string, reason string) error {
	if err := p.tokens.DeleteAllForOwner(ctx, ownerID); err != nil {
		p.logger.Warn(ctx, "Failed to delete owner tokens", map[string]interface{}{
			"user_id": ownerID,
			"reason":  reason,
			"error":   err.Error(),
		})
		return domainerr.Persistence("delete owner tokens", err)
	}
	return nil
}
