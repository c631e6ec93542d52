package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorclub/auth-service/domain/domainerr"
)

// TokenKind discriminates the three token families kept in the store.
type TokenKind string

const (
	TokenKindAccess       TokenKind = "ACCESS"
	TokenKindRefresh      TokenKind = "REFRESH"
	TokenKindEmailConfirm TokenKind = "EMAIL_CONFIRM"
)

// TokenKinds lists every kind in a stable order.
var TokenKinds = []TokenKind{TokenKindAccess, TokenKindRefresh, TokenKindEmailConfirm}

func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh, TokenKindEmailConfirm:
		return true
	}
	return false
}

// DeviceScoped reports whether tokens of this kind carry a device binding.
func (k TokenKind) DeviceScoped() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

func (k TokenKind) String() string {
	return string(k)
}

type Token struct {
	ID        string     `json:"id"`
	Value     string     `json:"-"`
	Kind      TokenKind  `json:"kind"`
	OwnerID   string     `json:"owner_id"`
	DeviceID  *uuid.UUID `json:"device_id,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewToken(kind TokenKind, ownerID, value string, createdAt, expiresAt time.Time) *Token {
	return &Token{
		Kind:      kind,
		OwnerID:   ownerID,
		Value:     value,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}
}

func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

func (t *Token) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// BoundTo reports whether the token is bound to deviceID.
func (t *Token) BoundTo(deviceID uuid.UUID) bool {
	return t.DeviceID != nil && *t.DeviceID == deviceID
}

// BindDevice sets the device binding. A token is bound at most once; binding
// again to the same device is a no-op.
func (t *Token) BindDevice(deviceID uuid.UUID) error {
	if !t.Kind.DeviceScoped() {
		return domainerr.ErrInvalidRequest
	}
	if t.DeviceID != nil {
		if *t.DeviceID == deviceID {
			return nil
		}
		return domainerr.ErrDeviceAlreadyBound
	}
	id := deviceID
	t.DeviceID = &id
	return nil
}
