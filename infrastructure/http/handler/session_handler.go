package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mentorclub/auth-service/application/port/inbound"
	"github.com/mentorclub/auth-service/application/usecase"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/infrastructure/http/middleware"
	"github.com/mentorclub/auth-service/infrastructure/http/response"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
	"github.com/mentorclub/auth-service/pkg/apperror"
)

const (
	RefreshCookieName = "refreshToken"
	DeviceIDHeader    = "X-Device-ID"
)

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Path   string
	Secure bool
}

type SessionHandler struct {
	sessions inbound.SessionUseCase
	cookie   CookieConfig
	logger   logger.Logger
}

func NewSessionHandler(sessions inbound.SessionUseCase, cookie CookieConfig, log logger.Logger) *SessionHandler {
	if cookie.Path == "" {
		cookie.Path = "/token/new-access-token"
	}
	return &SessionHandler{
		sessions: sessions,
		cookie:   cookie,
		logger:   log.WithFields(map[string]interface{}{"component": "session_handler"}),
	}
}

// Register mounts the user and token routes on r.
func (h *SessionHandler) Register(r *mux.Router, auth *middleware.AuthMiddleware) {
	user := r.PathPrefix("/user").Subrouter()
	user.HandleFunc("", h.CreateUser).Methods(http.MethodPost)
	user.HandleFunc("", h.DeleteAccount).Methods(http.MethodDelete)
	user.HandleFunc("/authenticate", h.Authenticate).Methods(http.MethodPost)
	user.HandleFunc("/confirm-email/{token}", h.ConfirmEmail).Methods(http.MethodGet)
	user.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	user.HandleFunc("/reset-forgotten-password", h.ResetForgottenPassword).Methods(http.MethodPost)
	user.HandleFunc("/public-key", h.PublicKey).Methods(http.MethodGet)

	token := r.PathPrefix("/token").Subrouter()
	token.HandleFunc("/new-access-token", h.NewAccessToken).Methods(http.MethodPost)
	token.HandleFunc("/validate", auth.RequireAuth(h.Validate)).Methods(http.MethodGet)
}

func (h *SessionHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req inbound.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.sessions.Register(requestContext(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, http.StatusCreated, "User created, check your inbox to confirm the email address", res)
}

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

func (h *SessionHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	deviceID, ok := h.deviceID(w, r, req.DeviceID)
	if !ok {
		return
	}

	session, err := h.sessions.Login(requestContext(r), inbound.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		DeviceID: deviceID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeSession(w, session)
}

func (h *SessionHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r, "")
	if !ok {
		return
	}

	session, err := h.sessions.ConfirmEmail(requestContext(r), mux.Vars(r)["token"], deviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeSession(w, session)
}

type deviceRequest struct {
	DeviceID string `json:"deviceId"`
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.withBearerAndDevice(w, r, func(bearer string, deviceID uuid.UUID) error {
		return h.sessions.Logout(requestContext(r), bearer, deviceID)
	}, "Logged out")
}

func (h *SessionHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	h.withBearerAndDevice(w, r, func(bearer string, deviceID uuid.UUID) error {
		return h.sessions.DeleteAccount(requestContext(r), bearer, deviceID)
	}, "Account deleted")
}

func (h *SessionHandler) withBearerAndDevice(w http.ResponseWriter, r *http.Request, fn func(string, uuid.UUID) error, message string) {
	bearer := middleware.BearerToken(r)
	if bearer == "" {
		response.Unauthorized(w, "Authorization header required")
		return
	}

	var body deviceRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	deviceID, ok := h.deviceID(w, r, body.DeviceID)
	if !ok {
		return
	}

	if err := fn(bearer, deviceID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	response.Success(w, http.StatusOK, message, nil)
}

func (h *SessionHandler) ResetForgottenPassword(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		response.BadRequest(w, "email is required")
		return
	}

	if err := h.sessions.RequestPasswordReset(requestContext(r), email); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, "Password reset email sent", nil)
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (h *SessionHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "success", publicKeyResponse{PublicKey: string(h.sessions.PublicKey())})
}

func (h *SessionHandler) NewAccessToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		response.Unauthorized(w, "Refresh token required")
		return
	}

	var body deviceRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	deviceID, ok := h.deviceID(w, r, body.DeviceID)
	if !ok {
		return
	}

	session, err := h.sessions.Refresh(requestContext(r), inbound.RefreshRequest{
		RefreshToken: cookie.Value,
		DeviceID:     deviceID,
		AccessToken:  middleware.BearerToken(r),
	})
	if err != nil {
		// A refresh token that is gone means the session is over, not that a
		// resource is missing.
		if errors.Is(err, domainerr.ErrTokenNotFound) {
			h.clearRefreshCookie(w)
			response.Unauthorized(w, "Invalid or expired refresh token")
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.writeSession(w, session)
}

type validateResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		response.Unauthorized(w, "User not authenticated")
		return
	}

	response.Success(w, http.StatusOK, "success", validateResponse{
		Message: "Token is valid",
		UserID:  identity.UserID,
	})
}

// requestContext carries the caller address into the use case for lockouts
// and audit events.
func requestContext(r *http.Request) context.Context {
	return usecase.WithClientIP(r.Context(), middleware.ClientIP(r))
}

// deviceID reads the device from the X-Device-ID header, then the deviceId
// query parameter, then the body value. A missing or malformed id is a 400.
func (h *SessionHandler) deviceID(w http.ResponseWriter, r *http.Request, fromBody string) (uuid.UUID, bool) {
	raw := r.Header.Get(DeviceIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get("deviceId")
	}
	if raw == "" {
		raw = fromBody
	}

	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		response.BadRequest(w, "A valid deviceId is required")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SessionHandler) writeSession(w http.ResponseWriter, session *inbound.SessionResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    session.RefreshToken,
		Path:     h.cookie.Path,
		MaxAge:   int(session.RefreshExpiresIn / time.Second),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	response.Success(w, http.StatusOK, "success", session)
}

func (h *SessionHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// loginRetryAfter is advertised to clients locked out of login.
const loginRetryAfter = 15 * time.Minute

func (h *SessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.MapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "Request failed", err, map[string]interface{}{
			"code": appErr.Code,
		})
	}
	if appErr.Status == http.StatusTooManyRequests {
		response.TooManyRequests(w, loginRetryAfter, appErr)
		return
	}
	response.AppError(w, appErr)
}
