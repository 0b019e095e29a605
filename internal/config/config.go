package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "PrizePool"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultPoolConfig      = "config/pool.yaml"
	defaultKeeperSchedule  = "@every 1m"
	defaultMaintenanceRPS  = 2.0
	defaultOwnerName       = "owner"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	tokenTTLSecondsEnvVar  = "ACCESS_TOKEN_TTL_SECONDS"
	tokenTTLDurEnvVar      = "ACCESS_TOKEN_TTL"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	AccessTokenTTL time.Duration
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	PoolConfigPath string
	KeeperEnabled  bool
	KeeperSchedule string
	MaintenanceRPS float64
	OwnerName      string
	OwnerSecret    string
	// RNGSecret seeds the local randomness service. Empty means a fresh
	// random secret per process.
	RNGSecret string
}

// Load reads configuration values from the environment and populates a Config instance.
// Postgres, Redis and the JWT secret are required outside development.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AccessTokenTTL: defaultAccessTokenTTL,
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		PoolConfigPath: getEnv("POOL_CONFIG", defaultPoolConfig),
		KeeperSchedule: getEnv("KEEPER_SCHEDULE", defaultKeeperSchedule),
		MaintenanceRPS: defaultMaintenanceRPS,
		OwnerName:      getEnv("OWNER_NAME", defaultOwnerName),
		OwnerSecret:    os.Getenv("OWNER_SECRET"),
		RNGSecret:      os.Getenv("RNG_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv(tokenTTLSecondsEnvVar, tokenTTLDurEnvVar, cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}

	cfg.KeeperEnabled = true
	if v := os.Getenv("KEEPER_ENABLED"); v != "" {
		if cfg.KeeperEnabled, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid KEEPER_ENABLED: %w", err)
		}
	}
	if v := os.Getenv("MAINTENANCE_RPS"); v != "" {
		if cfg.MaintenanceRPS, err = strconv.ParseFloat(v, 64); err != nil || cfg.MaintenanceRPS <= 0 {
			return Config{}, fmt.Errorf("invalid MAINTENANCE_RPS: %q", v)
		}
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-only-secret"
		}
		if cfg.OwnerSecret == "" {
			cfg.OwnerSecret = "dev-owner-secret"
		}
		return cfg, nil
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.OwnerSecret == "" {
		return Config{}, fmt.Errorf("OWNER_SECRET must be set")
	}
	return cfg, nil
}

// IsDev reports whether the service runs in a development environment, where
// Postgres and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// durationEnv reads whole seconds from secondsKey, falling back to a Go
// duration string in durKey.
func durationEnv(secondsKey, durKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
