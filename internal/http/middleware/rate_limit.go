package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig bounds per-IP request volume over a fixed window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// DefaultRateLimitConfig allows 100 requests per minute per IP, which is
// generous for humans following links and tight enough to blunt scrapers.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 100,
		Window:      time.Minute,
		KeyPrefix:   "hoplink:ratelimit",
	}
}

// RateLimit is a Redis-backed fixed-window limiter. Redis being down fails
// open: a limiter outage must not take the redirect surface with it.
func RateLimit(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := config.KeyPrefix + ":" + c.IP()

		count, err := redisClient.Incr(c.Context(), key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			redisClient.Expire(c.Context(), key, config.Window)
		}

		remaining := config.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if count > int64(config.MaxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
