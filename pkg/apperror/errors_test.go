package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mentorclub/auth-service/domain/domainerr"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   domainerr.ErrorCode
	}{
		{"wrong password", domainerr.ErrInvalidCredentials, http.StatusUnauthorized, domainerr.ErrCodeInvalidCredentials},
		{"tampered", fmt.Errorf("decode: %w", domainerr.ErrSignatureInvalid), http.StatusUnauthorized, domainerr.ErrCodeSignatureInvalid},
		{"not whitelisted", domainerr.ErrNotWhitelisted, http.StatusUnauthorized, domainerr.ErrCodeNotWhitelisted},
		{"expired", domainerr.ErrExpired, http.StatusUnauthorized, domainerr.ErrCodeTokenExpired},
		{"device mismatch", domainerr.ErrDeviceMismatch, http.StatusUnauthorized, domainerr.ErrCodeDeviceMismatch},
		{"unconfirmed", domainerr.ErrEmailNotConfirmed, http.StatusForbidden, domainerr.ErrCodeEmailNotConfirmed},
		{"already confirmed", domainerr.ErrEmailAlreadyConfirmed, http.StatusConflict, domainerr.ErrCodeEmailAlreadyConfirmed},
		{"missing user", domainerr.ErrUserNotFound, http.StatusNotFound, domainerr.ErrCodeUserNotFound},
		{"duplicate user", domainerr.ErrUserAlreadyExists, http.StatusConflict, domainerr.ErrCodeUserAlreadyExists},
		{"rate limited", domainerr.ErrRateLimited, http.StatusTooManyRequests, domainerr.ErrCodeRateLimitExceeded},
		{"persistence", domainerr.Persistence("save token", errors.New("pq: duplicate key")), http.StatusInternalServerError, domainerr.ErrCodeDatabaseError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, domainerr.ErrCodeInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, string(tt.code), got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestMapErrorHidesDetails(t *testing.T) {
	err := fmt.Errorf("token eyJhbGciOi.payload.sig: %w", domainerr.ErrExpired)

	got := MapError(err)
	assert.NotContains(t, got.Message, "eyJhbGciOi")

	got = MapError(domainerr.Persistence("save token", errors.New("pq: duplicate key value violates unique constraint")))
	assert.NotContains(t, got.Message, "pq:")
}

func TestMapErrorPassesAppErrorThrough(t *testing.T) {
	bad := NewBadRequest("deviceId is required")
	assert.Same(t, bad, MapError(fmt.Errorf("handler: %w", bad)))
}
