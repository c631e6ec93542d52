package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/application/port/inbound"
	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/domain/valueobject"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

// LoginLimits configures failed login throttling. Zero attempts disables the
// corresponding check.
type LoginLimits struct {
	IPAttempts    int
	IPWindow      time.Duration
	UserAttempts  int
	UserWindow    time.Duration
	BlockDuration time.Duration
}

// SessionDeps are the collaborators of the session use case. RateLimiter and
// Metrics are optional.
type SessionDeps struct {
	Users       outbound.UserRepository
	Tokens      outbound.TokenRepository
	Signer      outbound.TokenSigner
	Passwords   outbound.PasswordService
	Mailer      outbound.Mailer
	RateLimiter outbound.RateLimitService
	Metrics     outbound.LifecycleMetrics
	Logger      logger.Logger
	Lifetimes   LifetimePolicy
	LoginLimits LoginLimits
	// BackendURL prefixes the links sent by email.
	BackendURL string
	Now        func() time.Time
	NewUserID  func() string
}

type SessionUseCase struct {
	users       outbound.UserRepository
	tokens      outbound.TokenRepository
	signer      outbound.TokenSigner
	passwords   outbound.PasswordService
	mailer      outbound.Mailer
	rateLimiter outbound.RateLimitService
	metrics     outbound.LifecycleMetrics
	logger      logger.Logger
	factory     *TokenFactory
	validator   *WhitelistValidator
	rotation    *RotationCoordinator
	purger      *tokenPurger
	limits      LoginLimits
	backendURL  string
	now         func() time.Time
	newUserID   func() string
}

func NewSessionUseCase(deps SessionDeps) inbound.SessionUseCase {
	if deps.Metrics == nil {
		deps.Metrics = outbound.NoopMetrics()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewUserID == nil {
		deps.NewUserID = uuid.NewString
	}

	factory := NewTokenFactory(deps.Tokens, deps.Signer, deps.Lifetimes, deps.Metrics, deps.Logger, deps.Now)

	return &SessionUseCase{
		users:       deps.Users,
		tokens:      deps.Tokens,
		signer:      deps.Signer,
		passwords:   deps.Passwords,
		mailer:      deps.Mailer,
		rateLimiter: deps.RateLimiter,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		factory:     factory,
		validator:   NewWhitelistValidator(deps.Signer, deps.Users, deps.Tokens, deps.Metrics, deps.Logger, deps.Now),
		rotation:    NewRotationCoordinator(deps.Tokens, deps.Users, factory, deps.Metrics, deps.Logger, deps.Now),
		purger:      &tokenPurger{tokens: deps.Tokens, metrics: deps.Metrics, logger: deps.Logger},
		limits:      deps.LoginLimits,
		backendURL:  strings.TrimRight(deps.BackendURL, "/"),
		now:         deps.Now,
		newUserID:   deps.NewUserID,
	}
}

func (uc *SessionUseCase) Register(ctx context.Context, req inbound.RegisterRequest) (*inbound.RegisterResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateRegisterRequest(req); err != nil {
		return nil, err
	}

	for _, lookup := range []func() (*entity.User, error){
		func() (*entity.User, error) { return uc.users.FindByUsername(ctx, req.Username) },
		func() (*entity.User, error) { return uc.users.FindByEmail(ctx, req.Email) },
	} {
		_, err := lookup()
		if err == nil {
			logger.LogAuthEvent(ctx, uc.logger, "register_duplicate", "", ClientIPFromContext(ctx), false, map[string]interface{}{
				"username": req.Username,
			})
			return nil, domainerr.ErrUserAlreadyExists
		}
		if !errors.Is(err, outbound.ErrUserNotFound) {
			uc.logger.Error(ctx, "Failed to check existing user", err, nil)
			return nil, domainerr.Persistence("find user", err)
		}
	}

	hash, err := uc.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := entity.NewUser(uc.newUserID(), req.Username, req.Email, req.Name, hash, req.ThumbnailBase64)
	if err := uc.users.Save(ctx, user); err != nil {
		if errors.Is(err, outbound.ErrUserAlreadyExists) {
			return nil, domainerr.ErrUserAlreadyExists
		}
		uc.logger.Error(ctx, "Failed to save user", err, map[string]interface{}{
			"username": req.Username,
		})
		return nil, domainerr.Persistence("save user", err)
	}

	confirm, err := uc.factory.Mint(ctx, user, entity.TokenKindEmailConfirm, false, uuid.Nil)
	if err != nil {
		return nil, err
	}

	status := uc.mailer.SendConfirmationEmail(ctx, uc.backendURL+"/user/confirm-email/"+confirm.Value, user)
	logger.LogAuthEvent(ctx, uc.logger, "register", user.ID, ClientIPFromContext(ctx), true, map[string]interface{}{
		"mail_status": string(status),
	})

	return &inbound.RegisterResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, nil
}

func validateRegisterRequest(req inbound.RegisterRequest) error {
	if req.Username == "" {
		return fmt.Errorf("%w: %w", domainerr.ErrInvalidRequest, valueobject.ErrEmptyUsername)
	}
	if err := valueobject.ValidateEmail(req.Email); err != nil {
		return fmt.Errorf("%w: %w", domainerr.ErrInvalidRequest, err)
	}
	if err := valueobject.ValidatePassword(req.Password); err != nil {
		return fmt.Errorf("%w: %w", domainerr.ErrInvalidRequest, err)
	}
	return nil
}

// Login verifies the password before the email status so that the status is
// only revealed to a caller who knows the password.
func (uc *SessionUseCase) Login(ctx context.Context, req inbound.LoginRequest) (*inbound.SessionResponse, error) {
	ip := ClientIPFromContext(ctx)

	credentials, err := valueobject.NewCredentials(req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainerr.ErrInvalidRequest, err)
	}
	if req.DeviceID == uuid.Nil {
		return nil, fmt.Errorf("%w: device id is required", domainerr.ErrInvalidRequest)
	}

	ipKey := "login:ip:" + ip
	if err := uc.checkLimit(ctx, ipKey, uc.limits.IPAttempts, uc.limits.IPWindow); err != nil {
		uc.metrics.LoginAttempt("rate_limited")
		return nil, err
	}

	user, err := uc.users.FindByUsername(ctx, credentials.Username())
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			uc.recordFailure(ctx, ipKey, uc.limits.IPAttempts, uc.limits.IPWindow)
			uc.metrics.LoginAttempt("user_not_found")
			logger.LogAuthEvent(ctx, uc.logger, "login_failed_user_not_found", "", ip, false, map[string]interface{}{
				"username": credentials.Username(),
			})
			return nil, domainerr.ErrUserNotFound
		}
		uc.logger.Error(ctx, "Failed to find user", err, nil)
		return nil, domainerr.Persistence("find user", err)
	}

	userKey := "login:user:" + user.ID
	if err := uc.checkLimit(ctx, userKey, uc.limits.UserAttempts, uc.limits.UserWindow); err != nil {
		uc.metrics.LoginAttempt("rate_limited")
		return nil, err
	}

	start := uc.now()
	valid, err := uc.passwords.VerifyPassword(credentials.Password(), user.PasswordHash)
	logger.LogPerformance(ctx, uc.logger, "password_verification", uc.now().Sub(start), map[string]interface{}{
		"user_id": user.ID,
	})
	if err != nil {
		uc.logger.Error(ctx, "Password verification error", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		uc.recordFailure(ctx, ipKey, uc.limits.IPAttempts, uc.limits.IPWindow)
		uc.recordFailure(ctx, userKey, uc.limits.UserAttempts, uc.limits.UserWindow)
		uc.metrics.LoginAttempt("invalid_credentials")
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_invalid_password", user.ID, ip, false, nil)
		return nil, domainerr.ErrInvalidCredentials
	}

	if !user.IsEmailConfirmed() {
		uc.metrics.LoginAttempt("email_not_confirmed")
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_email_not_confirmed", user.ID, ip, false, nil)
		return nil, domainerr.ErrEmailNotConfirmed
	}

	uc.resetLimit(ctx, userKey)

	session, err := uc.openSession(ctx, user, req.DeviceID, purgeLogin)
	if err != nil {
		return nil, err
	}

	uc.metrics.LoginAttempt("success")
	logger.LogAuthEvent(ctx, uc.logger, "login_success", user.ID, ip, true, map[string]interface{}{
		"device_id": req.DeviceID.String(),
	})

	return toSessionResponse(session), nil
}

func (uc *SessionUseCase) Refresh(ctx context.Context, req inbound.RefreshRequest) (*inbound.SessionResponse, error) {
	session, err := uc.rotation.Rotate(ctx, RotateRequest{
		RefreshToken:   req.RefreshToken,
		DeviceID:       req.DeviceID,
		OldAccessToken: req.AccessToken,
	})
	if err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

// Logout removes every access and refresh token the user holds on deviceID.
func (uc *SessionUseCase) Logout(ctx context.Context, bearer string, deviceID uuid.UUID) error {
	result, err := uc.validator.ValidateForDevice(ctx, bearer, deviceID)
	if err != nil {
		return err
	}

	if err := uc.purger.purgeDevice(ctx, result.User.ID, deviceID, purgeLogout, entity.TokenKindAccess, entity.TokenKindRefresh); err != nil {
		return err
	}

	logger.LogAuthEvent(ctx, uc.logger, "logout", result.User.ID, ClientIPFromContext(ctx), true, map[string]interface{}{
		"device_id": deviceID.String(),
	})
	return nil
}

// ConfirmEmail consumes an email confirmation token and opens a session on
// deviceID, so confirming also logs the user in.
func (uc *SessionUseCase) ConfirmEmail(ctx context.Context, tokenValue string, deviceID uuid.UUID) (*inbound.SessionResponse, error) {
	if tokenValue == "" || deviceID == uuid.Nil {
		return nil, domainerr.ErrInvalidRequest
	}

	token, err := uc.tokens.FindByValue(ctx, entity.TokenKindEmailConfirm, tokenValue)
	if err != nil {
		if errors.Is(err, outbound.ErrTokenNotFound) {
			return nil, domainerr.ErrTokenNotFound
		}
		uc.logger.Error(ctx, "Failed to find confirmation token", err, nil)
		return nil, domainerr.Persistence("find confirmation token", err)
	}

	if token.IsExpiredAt(uc.now()) {
		_ = uc.purger.purge(ctx, token, purgeExpired)
		logger.LogAuthEvent(ctx, uc.logger, "confirm_email_expired", token.OwnerID, ClientIPFromContext(ctx), false, nil)
		return nil, domainerr.ErrExpired
	}

	user, err := uc.users.FindByID(ctx, token.OwnerID)
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			_ = uc.purger.purge(ctx, token, purgeOrphaned)
			return nil, domainerr.ErrUserNotFound
		}
		uc.logger.Error(ctx, "Failed to find user", err, nil)
		return nil, domainerr.Persistence("find user", err)
	}

	if user.IsEmailConfirmed() {
		_ = uc.purger.purge(ctx, token, purgeConsumed)
		return nil, domainerr.ErrEmailAlreadyConfirmed
	}

	user.ConfirmEmail()
	if err := uc.users.Save(ctx, user); err != nil {
		uc.logger.Error(ctx, "Failed to save confirmed user", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, domainerr.Persistence("save user", err)
	}

	if err := uc.purger.consume(ctx, token, purgeConsumed); errors.Is(err, domainerr.ErrTokenNotFound) {
		return nil, err
	}

	status := uc.mailer.SendConfirmationSuccessfulEmail(ctx, user)
	logger.LogAuthEvent(ctx, uc.logger, "confirm_email", user.ID, ClientIPFromContext(ctx), true, map[string]interface{}{
		"mail_status": string(status),
	})

	session, err := uc.openSession(ctx, user, deviceID, purgeLogin)
	if err != nil {
		return nil, err
	}
	return toSessionResponse(session), nil
}

func (uc *SessionUseCase) DeleteAccount(ctx context.Context, bearer string, deviceID uuid.UUID) error {
	result, err := uc.validator.ValidateForDevice(ctx, bearer, deviceID)
	if err != nil {
		return err
	}

	if err := uc.users.Delete(ctx, result.User.ID); err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			return domainerr.ErrUserNotFound
		}
		uc.logger.Error(ctx, "Failed to delete user", err, map[string]interface{}{
			"user_id": result.User.ID,
		})
		return domainerr.Persistence("delete user", err)
	}

	_ = uc.purger.purgeOwner(ctx, result.User.ID, purgeAccountGone)

	logger.LogSecurityEvent(ctx, uc.logger, "account_deleted", "LOW", map[string]interface{}{
		"user_id": result.User.ID,
		"ip":      ClientIPFromContext(ctx),
	})
	return nil
}

func (uc *SessionUseCase) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domainerr.ErrInvalidRequest
	}

	user, err := uc.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			return domainerr.ErrUserNotFound
		}
		uc.logger.Error(ctx, "Failed to find user", err, nil)
		return domainerr.Persistence("find user", err)
	}

	status := uc.mailer.SendPasswordResetEmail(ctx, uc.backendURL+"/user/change-password", user.Email)
	logger.LogAuthEvent(ctx, uc.logger, "password_reset_requested", user.ID, ClientIPFromContext(ctx), true, map[string]interface{}{
		"mail_status": string(status),
	})
	return nil
}

func (uc *SessionUseCase) ValidateAccessToken(ctx context.Context, bearer string) (*inbound.TokenIdentity, error) {
	result, err := uc.validator.Validate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	return &inbound.TokenIdentity{
		UserID:   result.User.ID,
		Username: result.User.Username,
		Groups:   result.Claims.Groups,
		TokenID:  result.Token.ID,
		DeviceID: result.Token.DeviceID,
	}, nil
}

func (uc *SessionUseCase) PublicKey() []byte {
	return uc.signer.PublicKey()
}

// openSession replaces whatever the user holds on deviceID with a fresh
// access and refresh pair. Failing to clear the old tokens is not fatal.
func (uc *SessionUseCase) openSession(ctx context.Context, user *entity.User, deviceID uuid.UUID, reason string) (*SessionResult, error) {
	_ = uc.purger.purgeDevice(ctx, user.ID, deviceID, reason, entity.TokenKindAccess, entity.TokenKindRefresh)

	access, err := uc.factory.Mint(ctx, user, entity.TokenKindAccess, true, deviceID)
	if err != nil {
		return nil, err
	}
	refresh, err := uc.factory.Mint(ctx, user, entity.TokenKindRefresh, true, deviceID)
	if err != nil {
		return nil, err
	}

	return &SessionResult{
		User:            user,
		Access:          access,
		Refresh:         refresh,
		RefreshLifetime: uc.factory.Lifetime(entity.TokenKindRefresh),
	}, nil
}

func toSessionResponse(session *SessionResult) *inbound.SessionResponse {
	displayName := session.User.Name
	if displayName == "" {
		displayName = session.User.Username
	}
	return &inbound.SessionResponse{
		Username:         session.User.Username,
		DisplayName:      displayName,
		ThumbnailPhoto:   session.User.ThumbnailBase64,
		AccessToken:      session.Access.Value,
		RefreshToken:     session.Refresh.Value,
		RefreshExpiresIn: session.RefreshLifetime,
	}
}

// checkLimit fails open when the limiter itself errors.
func (uc *SessionUseCase) checkLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	if uc.rateLimiter == nil || limit <= 0 {
		return nil
	}

	blocked, err := uc.rateLimiter.IsBlocked(ctx, key)
	if err != nil {
		uc.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		return nil
	}
	if blocked {
		logger.LogSecurityEvent(ctx, uc.logger, "blocked_login_attempt", "MEDIUM", map[string]interface{}{"key": key})
		return domainerr.ErrRateLimited
	}

	allowed, err := uc.rateLimiter.CheckLimit(ctx, key, limit, window)
	if err != nil {
		uc.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
		return nil
	}
	if !allowed {
		if err := uc.rateLimiter.Block(ctx, key, uc.limits.BlockDuration, "rate limit exceeded"); err != nil {
			uc.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
		}
		logger.LogSecurityEvent(ctx, uc.logger, "login_rate_limit_exceeded", "HIGH", map[string]interface{}{"key": key})
		return domainerr.ErrRateLimited
	}
	return nil
}

func (uc *SessionUseCase) recordFailure(ctx context.Context, key string, limit int, window time.Duration) {
	if uc.rateLimiter == nil || limit <= 0 {
		return
	}
	if err := uc.rateLimiter.Increment(ctx, key, window); err != nil {
		uc.logger.Error(ctx, "Failed to record login failure", err, map[string]interface{}{"key": key})
	}
}

func (uc *SessionUseCase) resetLimit(ctx context.Context, key string) {
	if uc.rateLimiter == nil || uc.limits.UserAttempts <= 0 {
		return
	}
	if err := uc.rateLimiter.Reset(ctx, key); err != nil {
		uc.logger.Error(ctx, "Failed to reset rate limit", err, map[string]interface{}{"key": key})
	}
}
