package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/domain/valueobject"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

// ValidationResult is the outcome of a successful access token check.
type ValidationResult struct {
	Claims *valueobject.ClaimSet
	User   *entity.User
	Token  *entity.Token
}

// WhitelistValidator accepts an access token only when its signature is good
// and the exact value is still stored for its owner. Expired tokens are
// purged on sight.
type WhitelistValidator struct {
	signer  outbound.TokenSigner
	users   outbound.UserRepository
	tokens  outbound.TokenRepository
	purger  *tokenPurger
	metrics outbound.LifecycleMetrics
	logger  logger.Logger
	now     func() time.Time
}

func NewWhitelistValidator(
	signer outbound.TokenSigner,
	users outbound.UserRepository,
	tokens outbound.TokenRepository,
	metrics outbound.LifecycleMetrics,
	log logger.Logger,
	now func() time.Time,
) *WhitelistValidator {
	if metrics == nil {
		metrics = outbound.NoopMetrics()
	}
	if now == nil {
		now = time.Now
	}
	return &WhitelistValidator{
		signer:  signer,
		users:   users,
		tokens:  tokens,
		purger:  &tokenPurger{tokens: tokens, metrics: metrics, logger: log},
		metrics: metrics,
		logger:  log,
		now:     now,
	}
}

func (v *WhitelistValidator) Validate(ctx context.Context, bearer string) (*ValidationResult, error) {
	if bearer == "" {
		v.metrics.ValidationFailed("invalid_token")
		return nil, domainerr.ErrInvalidToken
	}

	claims, err := v.signer.Decode(bearer)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, domainerr.ErrSignatureInvalid) {
			reason = "signature_invalid"
			logger.LogSecurityEvent(ctx, v.logger, "token_signature_invalid", "MEDIUM", nil)
		}
		v.metrics.ValidationFailed(reason)
		return nil, err
	}

	user, err := v.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			v.metrics.ValidationFailed("not_whitelisted")
			return nil, domainerr.ErrNotWhitelisted
		}
		v.logger.Error(ctx, "Failed to load token owner", err, map[string]interface{}{
			"subject": claims.Subject,
		})
		return nil, domainerr.Persistence("find token owner", err)
	}

	stored, err := v.tokens.FindAllForOwner(ctx, entity.TokenKindAccess, user.ID)
	if err != nil {
		v.logger.Error(ctx, "Failed to load access tokens", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, domainerr.Persistence("list access tokens", err)
	}

	var token *entity.Token
	for _, candidate := range stored {
		if candidate.Value == bearer {
			token = candidate
			break
		}
	}
	if token == nil {
		v.metrics.ValidationFailed("not_whitelisted")
		logger.LogSecurityEvent(ctx, v.logger, "access_token_not_whitelisted", "LOW", map[string]interface{}{
			"user_id": user.ID,
			"token":   logger.Redacted,
		})
		return nil, domainerr.ErrNotWhitelisted
	}

	now := v.now()
	if token.IsExpiredAt(now) || (!claims.ExpiresAt.IsZero() && now.After(claims.ExpiresAt)) {
		_ = v.purger.purge(ctx, token, purgeExpired)
		v.metrics.ValidationFailed("expired")
		logger.LogAuthEvent(ctx, v.logger, "access_token_expired", user.ID, ClientIPFromContext(ctx), false, nil)
		return nil, domainerr.ErrExpired
	}

	return &ValidationResult{
		Claims: claims,
		User:   user,
		Token:  token,
	}, nil
}

// ValidateForDevice also requires the token to be bound to deviceID.
func (v *WhitelistValidator) ValidateForDevice(ctx context.Context, bearer string, deviceID uuid.UUID) (*ValidationResult, error) {
	result, err := v.Validate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	if !result.Token.BoundTo(deviceID) {
		v.metrics.ValidationFailed("device_mismatch")
		logger.LogSecurityEvent(ctx, v.logger, "access_token_device_mismatch", "MEDIUM", map[string]interface{}{
			"user_id":  result.User.ID,
			"token_id": result.Token.ID,
		})
		return nil, domainerr.ErrDeviceMismatch
	}

	return result, nil
}
