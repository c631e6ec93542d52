package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mentorclub/auth-service/infrastructure/http/middleware"
	"github.com/mentorclub/auth-service/infrastructure/http/response"
)

type RouterConfig struct {
	Sessions      *SessionHandler
	Health        *HealthHandler
	Auth          *middleware.AuthMiddleware
	RateLimit     *middleware.RateLimitMiddleware
	Metrics       http.Handler
	RequestLog    func(http.Handler) http.Handler
	CorrelationID func(http.Handler) http.Handler
	CORS          func(http.Handler) http.Handler
	ClientAddress func(http.Handler) http.Handler
}

// NewRouter wires every route and the middleware chain. Optional pieces
// left nil are skipped.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if cfg.Health != nil {
		r.HandleFunc("/health", cfg.Health.Health).Methods(http.MethodGet)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := r.NewRoute().Subrouter()
	if cfg.RequestLog != nil {
		api.Use(cfg.RequestLog)
	}
	if cfg.RateLimit != nil {
		api.Use(cfg.RateLimit.RateLimit)
	}
	cfg.Sessions.Register(api, cfg.Auth)

	var h http.Handler = r
	if cfg.ClientAddress != nil {
		h = cfg.ClientAddress(h)
	}
	if cfg.CORS != nil {
		h = cfg.CORS(h)
	}
	if cfg.CorrelationID != nil {
		h = cfg.CorrelationID(h)
	}
	return h
}
