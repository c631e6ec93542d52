// Package domainerr holds the sentinel errors of the token lifecycle and the
// code catalog used when they cross the service boundary.
package domainerr

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Authentication errors (1xxx)
	ErrCodeInvalidCredentials    ErrorCode = "AUTH_1001"
	ErrCodeUserNotFound          ErrorCode = "AUTH_1002"
	ErrCodeInvalidToken          ErrorCode = "AUTH_1003"
	ErrCodeTokenExpired          ErrorCode = "AUTH_1004"
	ErrCodeSignatureInvalid      ErrorCode = "AUTH_1005"
	ErrCodeNotWhitelisted        ErrorCode = "AUTH_1006"
	ErrCodeDeviceMismatch        ErrorCode = "AUTH_1007"
	ErrCodeTokenNotFound         ErrorCode = "AUTH_1008"
	ErrCodeEmailNotConfirmed     ErrorCode = "AUTH_1009"
	ErrCodeEmailAlreadyConfirmed ErrorCode = "AUTH_1010"
	ErrCodeDeviceAlreadyBound    ErrorCode = "AUTH_1011"

	// Validation errors (2xxx)
	ErrCodeInvalidRequest    ErrorCode = "VALID_2001"
	ErrCodeUserAlreadyExists ErrorCode = "VALID_2002"

	// Rate limiting errors (3xxx)
	ErrCodeRateLimitExceeded ErrorCode = "RATE_3001"

	// Database errors (5xxx)
	ErrCodeDatabaseError ErrorCode = "DB_5001"

	// Server errors (6xxx)
	ErrCodeInternalServerError ErrorCode = "SERVER_6001"
)

var (
	ErrInvalidToken          = errors.New("invalid token")
	ErrSignatureInvalid      = errors.New("token signature invalid")
	ErrNotWhitelisted        = errors.New("token not whitelisted")
	ErrExpired               = errors.New("token expired")
	ErrDeviceMismatch        = errors.New("token bound to a different device")
	ErrDeviceAlreadyBound    = errors.New("token already bound to a device")
	ErrTokenNotFound         = errors.New("token not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailNotConfirmed     = errors.New("email address not confirmed")
	ErrEmailAlreadyConfirmed = errors.New("email address already confirmed")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrRateLimited           = errors.New("too many attempts")
	ErrPersistence           = errors.New("persistence failure")
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidCredentials, ErrCodeInvalidCredentials},
	{ErrUserNotFound, ErrCodeUserNotFound},
	{ErrInvalidToken, ErrCodeInvalidToken},
	{ErrExpired, ErrCodeTokenExpired},
	{ErrSignatureInvalid, ErrCodeSignatureInvalid},
	{ErrNotWhitelisted, ErrCodeNotWhitelisted},
	{ErrDeviceMismatch, ErrCodeDeviceMismatch},
	{ErrTokenNotFound, ErrCodeTokenNotFound},
	{ErrEmailNotConfirmed, ErrCodeEmailNotConfirmed},
	{ErrEmailAlreadyConfirmed, ErrCodeEmailAlreadyConfirmed},
	{ErrDeviceAlreadyBound, ErrCodeDeviceAlreadyBound},
	{ErrInvalidRequest, ErrCodeInvalidRequest},
	{ErrUserAlreadyExists, ErrCodeUserAlreadyExists},
	{ErrRateLimited, ErrCodeRateLimitExceeded},
	{ErrPersistence, ErrCodeDatabaseError},
}

// CodeOf returns the catalog code of the first sentinel found in err's chain.
func CodeOf(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ErrCodeInternalServerError
}

// Persistence wraps a store failure so callers can match ErrPersistence while
// keeping the original cause in the chain.
func Persistence(operation string, cause error) error {
	return fmt.Errorf("%s: %w: %w", operation, ErrPersistence, cause)
}
