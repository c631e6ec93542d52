package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/domainerr"
	"github.com/mentorclub/auth-service/infrastructure/http/response"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
	"github.com/mentorclub/auth-service/pkg/apperror"
)

// RateLimitRule throttles requests whose path starts with Prefix.
type RateLimitRule struct {
	Name   string
	Prefix string
	Limit  int
	Window time.Duration
	Block  time.Duration
}

// DefaultRateLimitRules guard token rotation harder than everything else.
// Login has its own per-user limits inside the session use case.
var DefaultRateLimitRules = []RateLimitRule{
	{Name: "refresh", Prefix: "/token/new-access-token", Limit: 30, Window: time.Hour, Block: 15 * time.Minute},
	{Name: "general", Prefix: "/", Limit: 100, Window: time.Minute, Block: 5 * time.Minute},
}

type RateLimitMiddleware struct {
	rateLimitService outbound.RateLimitService
	rules            []RateLimitRule
	logger           logger.Logger
}

func NewRateLimitMiddleware(rateLimitService outbound.RateLimitService, rules []RateLimitRule, log logger.Logger) *RateLimitMiddleware {
	if len(rules) == 0 {
		rules = DefaultRateLimitRules
	}
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		rules:            rules,
		logger:           log,
	}
}

func (m *RateLimitMiddleware) rule(path string) RateLimitRule {
	for _, rule := range m.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule
		}
	}
	return m.rules[len(m.rules)-1]
}

// RateLimit counts every request per client IP. Limiter failures let the
// request through.
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.rateLimitService == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		clientIP := ClientIP(r)
		rule := m.rule(r.URL.Path)
		key := fmt.Sprintf("%s:ip:%s", rule.Name, clientIP)

		blocked, err := m.rateLimitService.IsBlocked(ctx, key)
		if err != nil {
			m.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		}
		if blocked {
			logger.LogSecurityEvent(ctx, m.logger, "rate_limit_blocked", "MEDIUM", map[string]interface{}{
				"ip":   clientIP,
				"path": r.URL.Path,
			})
			response.TooManyRequests(w, rule.Block, apperror.MapError(domainerr.ErrRateLimited))
			return
		}

		allowed, err := m.rateLimitService.CheckLimit(ctx, key, rule.Limit, rule.Window)
		if err != nil {
			m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
			allowed = true
		}
		if !allowed {
			if err := m.rateLimitService.Block(ctx, key, rule.Block, "Rate limit exceeded"); err != nil {
				m.logger.Error(ctx, "Failed to block client", err, map[string]interface{}{"key": key})
			}
			logger.LogSecurityEvent(ctx, m.logger, "rate_limit_exceeded", "HIGH", map[string]interface{}{
				"ip":   clientIP,
				"path": r.URL.Path,
			})
			response.TooManyRequests(w, rule.Block, apperror.MapError(domainerr.ErrRateLimited))
			return
		}

		if err := m.rateLimitService.Increment(ctx, key, rule.Window); err != nil {
			m.logger.Error(ctx, "Failed to count request", err, map[string]interface{}{"key": key})
		}

		next.ServeHTTP(w, r)
	})
}
