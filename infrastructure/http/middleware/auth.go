package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mentorclub/auth-service/application/port/inbound"
	"github.com/mentorclub/auth-service/application/usecase"
	"github.com/mentorclub/auth-service/infrastructure/http/response"
	"github.com/mentorclub/auth-service/pkg/apperror"
)

type identityKey struct{}

type AuthMiddleware struct {
	sessions inbound.SessionUseCase
}

func NewAuthMiddleware(sessions inbound.SessionUseCase) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// BearerToken returns the token of an "Authorization: Bearer" header, or ""
// when the header is missing or malformed.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth admits requests whose bearer token is whitelisted and stores
// the owner identity in the request context.
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			response.Unauthorized(w, "Authorization header required")
			return
		}

		ctx := usecase.WithClientIP(r.Context(), ClientIP(r))
		identity, err := m.sessions.ValidateAccessToken(ctx, token)
		if err != nil {
			response.AppError(w, apperror.MapError(err))
			return
		}

		ctx = context.WithValue(ctx, identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetIdentity retrieves the identity stored by RequireAuth.
func GetIdentity(ctx context.Context) *inbound.TokenIdentity {
	if identity, ok := ctx.Value(identityKey{}).(*inbound.TokenIdentity); ok {
		return identity
	}
	return nil
}
