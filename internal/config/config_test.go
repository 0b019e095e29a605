package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ACCESS_TOKEN_TTL_SECONDS", "60")
	t.Setenv("KEEPER_ENABLED", "false")
	t.Setenv("OWNER_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsDev())
	require.NotEmpty(t, cfg.JWTSecret)
	require.NotEmpty(t, cfg.OwnerSecret)
	require.Equal(t, time.Minute, cfg.AccessTokenTTL)
	require.False(t, cfg.KeeperEnabled)
	require.Equal(t, ":8080", cfg.Address())
}

func TestLoadProductionRequiresInfrastructure(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/pool")
	t.Setenv("REDIS_URL", "")
	_, err := Load()
	require.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "short")
	_, err = Load()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("OWNER_SECRET", "")
	_, err = Load()
	require.ErrorContains(t, err, "OWNER_SECRET")

	t.Setenv("OWNER_SECRET", "owner-secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.IsDev())
}

func TestLoadPoolFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: savings
prize_period_seconds: 86400
strategy: multiple
number_of_winners: 3
credit_rate_mantissa: "0.01"
credit_limit_mantissa: "0.1"
reserve_rate_mantissa: "0.05"
liquidity_cap: "1000000"
balance_drips:
  - measure: ticket
    drip_token: gov
    rate_per_second: "0.001"
`), 0o600))

	f, err := LoadPoolFile(path)
	require.NoError(t, err)
	require.Equal(t, "savings", f.ID)
	require.Equal(t, "dai", f.UnderlyingToken)
	require.Equal(t, int64(86400), f.PrizePeriodSeconds)
	require.Equal(t, 3, f.NumberOfWinners)
	require.Equal(t, "50000000000000000", f.ReserveRateMantissa.Int().String())
	require.Equal(t, "1000000000000000000000000", f.LiquidityCap.Int().String())
	require.Len(t, f.BalanceDrips, 1)
	require.Equal(t, "1000000000000000", f.BalanceDrips[0].RatePerSecond.Int().String())
}

func TestLoadPoolFileMissingUsesDefaults(t *testing.T) {
	f, err := LoadPoolFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultPoolFile().ID, f.ID)
	require.Nil(t, f.LiquidityCap.Int())
}

func TestPoolFileValidate(t *testing.T) {
	f := DefaultPoolFile()
	f.Strategy = "lottery"
	require.Error(t, f.Validate())

	f = DefaultPoolFile()
	f.Strategy = "multiple"
	require.Error(t, f.Validate())

	f = DefaultPoolFile()
	f.VolumeDrips = []VolumeDrip{{Measure: "ticket", DripToken: "gov"}}
	require.Error(t, f.Validate())
}

func TestPoolFileRejectsBadAmount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reserve_rate_mantissa: lots\n"), 0o600))
	_, err := LoadPoolFile(path)
	require.Error(t, err)
}
