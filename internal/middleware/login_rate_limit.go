package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LoginRateLimit limits login attempts per operator name, or per IP when the
// body names nobody. Counts live in Redis so every replica shares them;
// without Redis an in-process limiter applies the same budget.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	local := newKeyedLimiter(rate.Every(time.Minute/time.Duration(maxPerMin)), maxPerMin)
	return func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		_ = c.BodyParser(&req)
		subject := strings.ToLower(strings.TrimSpace(req.Name))
		if subject == "" {
			subject = c.IP()
		}

		if cache == nil {
			if !local.allow(subject, time.Now()) {
				return tooManyLogins()
			}
			return c.Next()
		}

		key := "prizepool:rl:login:" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return tooManyLogins()
		}
		return c.Next()
	}
}

func tooManyLogins() error {
	return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
}
