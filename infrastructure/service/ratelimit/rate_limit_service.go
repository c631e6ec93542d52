package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
)

const keyPrefix = "ratelimit:"

type rateLimitService struct {
	redisClient *redis.Client
	logger      logger.Logger
	now         func() time.Time
}

// NewRateLimitService counts attempts in redis. Counters expire one window
// after the first attempt.
func NewRateLimitService(client *redis.Client, log logger.Logger) outbound.RateLimitService {
	return &rateLimitService{
		redisClient: client,
		logger:      log.WithFields(map[string]interface{}{"component": "ratelimit"}),
		now:         time.Now,
	}
}

func (s *rateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	currentCount, err := s.GetAttempts(ctx, key)
	if err != nil {
		return false, err
	}

	isUnderLimit := currentCount < limit

	s.logger.Debug(ctx, "Rate limit check", map[string]interface{}{
		"key":         key,
		"current":     currentCount,
		"limit":       limit,
		"under_limit": isUnderLimit,
	})

	return isUnderLimit, nil
}

func (s *rateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	count, err := s.redisClient.Incr(ctx, keyPrefix+key).Result()
	if err != nil {
		s.logger.Error(ctx, "Failed to increment rate limit counter", err, nil)
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := s.redisClient.Expire(ctx, keyPrefix+key, window).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	s.logger.Debug(ctx, "Rate limit incremented", map[string]interface{}{
		"key":    key,
		"count":  count,
		"window": window.String(),
	})

	return nil
}

func (s *rateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	blockKey := blockKeyFor(key)

	blockData := map[string]interface{}{
		"reason":         reason,
		"blocked_at":     s.now().Unix(),
		"duration":       duration.Seconds(),
		"correlation_id": logger.CorrelationIDFromContext(ctx),
	}

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, blockKey, blockData)
		pipe.Expire(ctx, blockKey, duration)
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to block key", err, nil)
		return fmt.Errorf("failed to block key: %w", err)
	}

	s.logger.Warn(ctx, "Key blocked due to rate limit exceeded", map[string]interface{}{
		"key":      key,
		"duration": duration.String(),
		"reason":   reason,
	})

	return nil
}

func (s *rateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.redisClient.Exists(ctx, blockKeyFor(key)).Result()
	if err != nil {
		s.logger.Error(ctx, "Failed to check block status", err, nil)
		return false, fmt.Errorf("failed to check block status: %w", err)
	}

	return exists > 0, nil
}

func (s *rateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	count, err := s.redisClient.Get(ctx, keyPrefix+key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		s.logger.Error(ctx, "Failed to get attempts count", err, nil)
		return 0, fmt.Errorf("failed to get attempts: %w", err)
	}

	return count, nil
}

// Reset clears the counter for key, used after a successful login.
func (s *rateLimitService) Reset(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

func blockKeyFor(key string) string {
	return fmt.Sprintf("%sblocked:%s", keyPrefix, key)
}

type noopRateLimitService struct{}

// NewNoopRateLimitService allows everything. Used when rate limiting is disabled.
func NewNoopRateLimitService() outbound.RateLimitService {
	return noopRateLimitService{}
}

func (noopRateLimitService) CheckLimit(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (noopRateLimitService) Increment(context.Context, string, time.Duration) error { return nil }

func (noopRateLimitService) Block(context.Context, string, time.Duration, string) error { return nil }

func (noopRateLimitService) IsBlocked(context.Context, string) (bool, error) { return false, nil }

func (noopRateLimitService) GetAttempts(context.Context, string) (int, error) { return 0, nil }

func (noopRateLimitService) Reset(context.Context, string) error { return nil }
