package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/prizepool/internal/app"
	"github.com/congo-pay/prizepool/internal/config"
	"github.com/congo-pay/prizepool/internal/infra"
	"github.com/congo-pay/prizepool/internal/logging"
	"github.com/congo-pay/prizepool/internal/routes"
	"github.com/congo-pay/prizepool/internal/server"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	poolConfig := pflag.String("config", "", "pool parameters YAML (overrides POOL_CONFIG)")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *poolConfig != "" {
		cfg.PoolConfigPath = *poolConfig
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger := logging.New(cfg.LogLevel)
	if cfg.IsDev() {
		logger = logging.NewDev(cfg.LogLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("prize pool exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("prize pool exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, err := config.LoadPoolFile(cfg.PoolConfigPath)
	if err != nil {
		return err
	}

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
			return err
		}
		if db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, logger); err != nil {
			return err
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		if cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, logger); err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", slog.Any("error", err))
			}
		}()
	}

	a, err := app.Build(ctx, cfg, file, app.Options{DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return err
	}

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, App: a})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.ShutdownPeriod) })
	if a.Keeper != nil {
		g.Go(func() error { return a.Keeper.Run(gctx) })
	}
	return g.Wait()
}
