package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	"go.uber.org/zap"
)

const (
	rateLimitHeader     = "X-RateLimit-Limit"
	rateRemainingHeader = "X-RateLimit-Remaining"
	rateResetHeader     = "X-RateLimit-Reset"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 20,
		Window:      15 * time.Minute,
		KeyPrefix:   "powerlink:ratelimit",
	}
}

// RateCounter counts hits on key within a fixed window.
type RateCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter returns a RateCounter backed by INCR with a window expiry.
func NewRedisCounter(rdb *redis.Client) RateCounter {
	return &redisCounter{rdb: rdb}
}

func (r *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX keeps the window anchored at the first hit.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(counter RateCounter, config RateLimitConfig, log *zap.Logger) fiber.Handler {
	log = logger.Component(log, "rate_limit")
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRateLimitConfig().KeyPrefix
	}

	return func(c *fiber.Ctx) error {
		key := config.KeyPrefix + ":" + c.IP()

		result, err := counter.Incr(c.UserContext(), key, config.Window)
		if err != nil {
			log.Error("rate limit counter error", zap.Error(err))
			// Fail open: allow request if Redis is unavailable
			return c.Next()
		}

		remaining := config.MaxRequests - int(result)
		c.Set(rateLimitHeader, strconv.Itoa(config.MaxRequests))
		c.Set(rateRemainingHeader, strconv.Itoa(max(0, remaining)))
		c.Set(rateResetHeader, strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if result > int64(config.MaxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many links created from this IP, please try again later",
			})
		}

		return c.Next()
	}
}
