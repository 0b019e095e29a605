package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/app"
	"github.com/congo-pay/prizepool/internal/auth"
	"github.com/congo-pay/prizepool/internal/config"
	"github.com/congo-pay/prizepool/internal/identity"
	"github.com/congo-pay/prizepool/internal/ledger"
	"github.com/congo-pay/prizepool/internal/middleware"
	"github.com/congo-pay/prizepool/internal/pool"
)

const maintenanceBurst = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	App    *app.App
}

// Setup configures middlewares and all application routes.
func Setup(fapp *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.App == nil {
		return fmt.Errorf("routes need a built app")
	}
	a := d.App

	fapp.Use(recover.New())
	fapp.Use(middleware.RequestID())
	fapp.Use(middleware.Audit(d.Logger))
	fapp.Use(a.Metrics.HTTP())

	RegisterHealthRoutes(fapp, d)
	fapp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	poolHandler := pool.NewHandler(a.Pool, a.Scheduler, a.Drips)
	treasury := ledger.NewHandler(a.Ledger, a.NFTs, app.TreasuryAccount,
		a.PoolFile.TicketToken, a.PoolFile.SponsorshipToken)

	api := fapp.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c.UserContext()),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public reads and onboarding.
	RegisterPublicPoolRoutes(api, poolHandler)
	api.Get("/tokens/:token/balances/:holder", treasury.Balance)
	authHandler := auth.NewHandler(a.Auth)
	RegisterOperatorRoutes(api, identity.NewHandler(a.Identity), authHandler, middleware.LoginRateLimit(d.Cache, 5))

	RegisterMaintenanceRoutes(api, poolHandler, middleware.RateLimit(d.Cfg.MaintenanceRPS, maintenanceBurst))

	// Everything registered below requires a principal.
	authed := api.Group("", middleware.JWTAuth(a.Auth))
	if d.Cache != nil {
		authed.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	authed.Post("/operators/logout", authHandler.Logout)
	RegisterHolderRoutes(authed, poolHandler)

	admin := authed.Group("/admin", middleware.RequireRole(access.RoleOwner))
	RegisterAdminRoutes(admin, poolHandler, treasury)
	return nil
}
