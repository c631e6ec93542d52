package inbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	ThumbnailBase64 string `json:"thumbnailPhoto,omitempty"`
}

type RegisterResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	DeviceID uuid.UUID `json:"deviceId"`
}

type RefreshRequest struct {
	RefreshToken string    `json:"-"`
	DeviceID     uuid.UUID `json:"deviceId"`
	// AccessToken is the access token being replaced, if the caller still has it.
	AccessToken string `json:"-"`
}

// SessionResponse is returned by every flow that opens a session. The refresh
// token travels in a cookie, never in the body.
type SessionResponse struct {
	Username         string        `json:"username"`
	DisplayName      string        `json:"displayName"`
	ThumbnailPhoto   string        `json:"thumbnailPhoto"`
	AccessToken      string        `json:"token"`
	RefreshToken     string        `json:"-"`
	RefreshExpiresIn time.Duration `json:"-"`
}

// TokenIdentity describes the owner of a whitelisted access token.
type TokenIdentity struct {
	UserID   string     `json:"user_id"`
	Username string     `json:"username"`
	Groups   []string   `json:"groups"`
	TokenID  string     `json:"-"`
	DeviceID *uuid.UUID `json:"-"`
}

type SessionUseCase interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, req LoginRequest) (*SessionResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*SessionResponse, error)
	Logout(ctx context.Context, bearer string, deviceID uuid.UUID) error
	ConfirmEmail(ctx context.Context, tokenValue string, deviceID uuid.UUID) (*SessionResponse, error)
	DeleteAccount(ctx context.Context, bearer string, deviceID uuid.UUID) error
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateAccessToken(ctx context.Context, bearer string) (*TokenIdentity, error)
	PublicKey() []byte
}
