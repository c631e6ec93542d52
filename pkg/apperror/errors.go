// Package apperror turns domain errors into the status codes and generic
// messages written to HTTP clients.
package apperror

import (
	"errors"
	"net/http"

	"github.com/mentorclub/auth-service/domain/domainerr"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	cause   error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func newAppError(code domainerr.ErrorCode, status int, message string) *AppError {
	return &AppError{Code: string(code), Message: message, Status: status}
}

func NewBadRequest(message string) *AppError {
	return newAppError(domainerr.ErrCodeInvalidRequest, http.StatusBadRequest, message)
}

func NewUnauthorized(message string) *AppError {
	return newAppError(domainerr.ErrCodeInvalidToken, http.StatusUnauthorized, message)
}

func NewInternalServer(message string) *AppError {
	return newAppError(domainerr.ErrCodeInternalServerError, http.StatusInternalServerError, message)
}

var statuses = []struct {
	err     error
	status  int
	message string
}{
	{domainerr.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	{domainerr.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{domainerr.ErrSignatureInvalid, http.StatusUnauthorized, "Invalid token"},
	{domainerr.ErrNotWhitelisted, http.StatusUnauthorized, "Session is not active"},
	{domainerr.ErrExpired, http.StatusUnauthorized, "Token expired"},
	{domainerr.ErrDeviceMismatch, http.StatusUnauthorized, "Token is not valid for this device"},
	{domainerr.ErrDeviceAlreadyBound, http.StatusConflict, "Token is already bound to a device"},
	{domainerr.ErrEmailNotConfirmed, http.StatusForbidden, "Email address is not confirmed"},
	{domainerr.ErrEmailAlreadyConfirmed, http.StatusConflict, "Email address is already confirmed"},
	{domainerr.ErrTokenNotFound, http.StatusNotFound, "Token not found"},
	{domainerr.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{domainerr.ErrUserAlreadyExists, http.StatusConflict, "User already exists"},
	{domainerr.ErrInvalidRequest, http.StatusBadRequest, "Invalid request"},
	{domainerr.ErrRateLimited, http.StatusTooManyRequests, "Too many attempts, try again later"},
	{domainerr.ErrPersistence, http.StatusInternalServerError, "An unexpected error occurred"},
}

// MapError resolves err to an AppError. Messages never echo err itself, so
// token values and driver details stay out of responses.
func MapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, s := range statuses {
		if errors.Is(err, s.err) {
			e := newAppError(domainerr.CodeOf(s.err), s.status, s.message)
			e.cause = err
			return e
		}
	}

	e := NewInternalServer("An unexpected error occurred")
	e.cause = err
	return e
}
