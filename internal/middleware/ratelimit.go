package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// keyedLimiter hands out one token bucket per key. Idle buckets are dropped
// once they have refilled.
type keyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	idle    time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int) *keyedLimiter {
	idle := time.Minute
	if limit > 0 {
		if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &keyedLimiter{limit: limit, burst: burst, buckets: map[string]*bucket{}, idle: idle}
}

func (k *keyedLimiter) allow(key string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idle {
			delete(k.buckets, id)
		}
	}
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit throttles requests per client IP to rps with a burst of burst.
// The maintenance routes are public, so this keeps anyone from spinning the
// award or sweep machinery in a loop.
func RateLimit(rps float64, burst int) fiber.Handler {
	if burst <= 0 {
		burst = 1
	}
	limiter := newKeyedLimiter(rate.Limit(rps), burst)
	return func(c *fiber.Ctx) error {
		if !limiter.allow(c.IP(), time.Now()) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter(rps).Seconds())))
			return fiber.NewError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}

func retryAfter(rps float64) time.Duration {
	if rps <= 0 {
		return time.Minute
	}
	d := time.Duration(float64(time.Second) / rps)
	if d < time.Second {
		return time.Second
	}
	return d
}
