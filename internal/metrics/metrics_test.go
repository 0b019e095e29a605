package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

func TestObserveCountsEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())
	bus := events.NewBus()
	m.Observe(bus)

	ctx := context.Background()
	bus.Publish(ctx, events.Deposited{To: "alice", Token: "ticket", Amount: fixedpoint.MustParseUnits("100")})
	bus.Publish(ctx, events.Awarded{Winner: "alice", Token: "ticket", Amount: fixedpoint.MustParseUnits("2.5")})
	bus.Publish(ctx, events.InstantWithdrawal{From: "alice", ExitFee: fixedpoint.MustParseUnits("1")})
	bus.Publish(ctx, events.AwardStarted{Award: fixedpoint.MustParseUnits("7")})

	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("deposited")))
	require.Equal(t, 100.0, testutil.ToFloat64(m.DepositedTokens.WithLabelValues("ticket")))
	require.Equal(t, 2.5, testutil.ToFloat64(m.AwardedTokens))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ExitFeesTokens))
	require.Equal(t, 7.0, testutil.ToFloat64(m.LastAward))
}

func TestKeeperRunOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.KeeperRun("sweep", nil)
	m.KeeperRun("sweep", errors.New("boom"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.KeeperRunsTotal.WithLabelValues("sweep", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.KeeperRunsTotal.WithLabelValues("sweep", "error")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	app := fiber.New()
	app.Use(m.HTTP())
	app.Get("/holders/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusConflict, "nope") })

	_, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/holders/alice", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/fail", nil))
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/holders/:id", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/fail", "409")))
}
