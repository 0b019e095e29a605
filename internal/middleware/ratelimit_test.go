package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyedLimiterSeparatesKeys(t *testing.T) {
	l := newKeyedLimiter(1, 2)
	now := time.Unix(1000, 0)

	require.True(t, l.allow("a", now))
	require.True(t, l.allow("a", now))
	require.False(t, l.allow("a", now))
	require.True(t, l.allow("b", now))

	require.True(t, l.allow("a", now.Add(time.Second)))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(0.001, 1))
	app.Post("/award/start", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusAccepted) })

	first, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/award/start", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, first.StatusCode)

	second, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/award/start", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, second.StatusCode)
	require.NotEmpty(t, second.Header.Get(fiber.HeaderRetryAfter))
}

func loginApp(cache *redis.Client) *fiber.App {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func login(t *testing.T, app *fiber.App, name string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"name":"`+name+`"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestLoginRateLimitPerNameWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	app := loginApp(cache)

	require.Equal(t, fiber.StatusOK, login(t, app, "alice"))
	require.Equal(t, fiber.StatusOK, login(t, app, "Alice"))
	require.Equal(t, fiber.StatusTooManyRequests, login(t, app, "alice"))
	require.Equal(t, fiber.StatusOK, login(t, app, "bob"))
}

func TestLoginRateLimitWithoutRedis(t *testing.T) {
	app := loginApp(nil)

	require.Equal(t, fiber.StatusOK, login(t, app, "alice"))
	require.Equal(t, fiber.StatusOK, login(t, app, "alice"))
	require.Equal(t, fiber.StatusTooManyRequests, login(t, app, "alice"))
}
