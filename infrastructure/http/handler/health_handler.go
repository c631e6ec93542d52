package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mentorclub/auth-service/infrastructure/http/response"
)

// Check reports whether a backing store is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		response.WriteJSON(w, http.StatusServiceUnavailable, false, "unhealthy", status)
		return
	}
	response.Success(w, http.StatusOK, "healthy", status)
}
