package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/app"
	"github.com/congo-pay/prizepool/internal/config"
	"github.com/congo-pay/prizepool/internal/logging"
	"github.com/congo-pay/prizepool/internal/routes"
)

type harness struct {
	t     *testing.T
	fiber *fiber.App
	clock *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Config{
		AppName:        "PrizePool",
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "0123456789abcdef0123456789abcdef",
		AccessTokenTTL: time.Hour,
		IdempotencyTTL: time.Hour,
		MaintenanceRPS: 100,
		OwnerName:      "owner",
		OwnerSecret:    "owner-secret",
	}
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	logger := logging.Discard()

	a, err := app.Build(context.Background(), cfg, config.DefaultPoolFile(), app.Options{Clock: clock, Logger: logger})
	require.NoError(t, err)
	require.Nil(t, a.Keeper)

	srv, err := New(routes.Deps{Cfg: cfg, Logger: logger, App: a})
	require.NoError(t, err)
	return &harness{t: t, fiber: srv.App(), clock: clock}
}

func (h *harness) do(method, path, token, body string) (int, map[string]any) {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := h.fiber.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(h.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (h *harness) login(name, secret string) string {
	h.t.Helper()
	status, body := h.do(fiber.MethodPost, "/api/v1/operators/login", "", `{"name":"`+name+`","secret":"`+secret+`"}`)
	require.Equal(h.t, fiber.StatusOK, status)
	return body["access_token"].(string)
}

func TestDepositAndInstantWithdrawalOverHTTP(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(fiber.MethodPost, "/api/v1/operators/register", "", `{"name":"alice","secret":"alice-secret"}`)
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = h.do(fiber.MethodPost, "/api/v1/operators/register", "", `{"name":"pool","secret":"whatever-secret"}`)
	require.Equal(t, fiber.StatusConflict, status)

	owner := h.login("owner", "owner-secret")
	alice := h.login("alice", "alice-secret")

	status, _ = h.do(fiber.MethodPost, "/api/v1/admin/treasury/mint", owner, `{"token":"dai","to":"alice","amount":"100"}`)
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = h.do(fiber.MethodPost, "/api/v1/admin/treasury/mint", alice, `{"token":"dai","to":"alice","amount":"100"}`)
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = h.do(fiber.MethodPost, "/api/v1/approvals", alice, `{"amount":"100"}`)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = h.do(fiber.MethodPost, "/api/v1/deposits", alice, `{"amount":"100"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := h.do(fiber.MethodGet, "/api/v1/holders/alice/balances", "", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "100", body["tickets"])

	status, body = h.do(fiber.MethodGet, "/api/v1/holders/alice/exit-fee?amount=100", "", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "10", body["exit_fee"])

	status, body = h.do(fiber.MethodPost, "/api/v1/withdrawals/instant", alice, `{"amount":"100"}`)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "10", body["exit_fee"])
	require.Equal(t, "90", body["redeemed"])

	status, body = h.do(fiber.MethodGet, "/api/v1/tokens/dai/balances/alice", "", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "90", body["balance"])
}

func TestHolderRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(fiber.MethodPost, "/api/v1/deposits", "", `{"amount":"1"}`)
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, body := h.do(fiber.MethodPost, "/api/v1/deposits", "not-a-jwt", `{"amount":"1"}`)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "invalid token", body["error"])
}

func TestAwardCannotStartBeforePeriodEnds(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(fiber.MethodPost, "/api/v1/pool/award/start", "", "")
	require.Equal(t, fiber.StatusTooEarly, status)

	status, body := h.do(fiber.MethodGet, "/api/v1/pool/award", "", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, false, body["can_start_award"])
}

func TestOpsEndpoints(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(fiber.MethodGet, "/healthz", "", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "idle", body["award"])

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := h.fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "go_goroutines")
}
