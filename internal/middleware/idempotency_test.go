package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/logging"
)

// setupIdempotentApp mounts a counter handler behind Idempotency. The
// X-Test-Caller header stands in for an authenticated principal.
func setupIdempotentApp(t *testing.T, status int) (*fiber.App, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	calls := 0
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if caller := c.Get("X-Test-Caller"); caller != "" {
			c.SetUserContext(access.WithPrincipal(c.UserContext(), access.Principal{ID: caller, Role: access.RoleHolder}))
		}
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/deposits", func(c *fiber.Ctx) error {
		calls++
		return c.Status(status).JSON(fiber.Map{"call": calls})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, key, caller string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/deposits", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if caller != "" {
		req.Header.Set("X-Test-Caller", caller)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupIdempotentApp(t, fiber.StatusCreated)
	status, _ := post(t, app, "", "alice")
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusCreated)

	status, body := post(t, app, "abc123", "alice")
	require.Equal(t, fiber.StatusCreated, status)

	status2, body2 := post(t, app, "abc123", "alice")
	require.Equal(t, fiber.StatusCreated, status2)
	require.JSONEq(t, body, body2)
	require.Equal(t, 1, *calls)
}

func TestIdempotencyKeysAreScopedPerCaller(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusCreated)

	_, alice := post(t, app, "same-key", "alice")
	_, bob := post(t, app, "same-key", "bob")
	require.JSONEq(t, `{"call":1}`, alice)
	require.JSONEq(t, `{"call":2}`, bob)
	require.Equal(t, 2, *calls)
}

func TestIdempotencyDoesNotCacheServerErrors(t *testing.T) {
	app, calls := setupIdempotentApp(t, fiber.StatusBadGateway)

	post(t, app, "retry-me", "alice")
	post(t, app, "retry-me", "alice")
	require.Equal(t, 2, *calls)
}
