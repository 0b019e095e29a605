// Package app assembles the prize pool service from its configuration.
package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/auth"
	"github.com/congo-pay/prizepool/internal/config"
	"github.com/congo-pay/prizepool/internal/credit"
	"github.com/congo-pay/prizepool/internal/drip"
	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/identity"
	"github.com/congo-pay/prizepool/internal/keeper"
	"github.com/congo-pay/prizepool/internal/ledger"
	"github.com/congo-pay/prizepool/internal/metrics"
	"github.com/congo-pay/prizepool/internal/notification"
	"github.com/congo-pay/prizepool/internal/pool"
	"github.com/congo-pay/prizepool/internal/prize"
	"github.com/congo-pay/prizepool/internal/rng"
	"github.com/congo-pay/prizepool/internal/yieldsource"
)

// TreasuryAccount controls the underlying and drip tokens so the owner can
// fund holders and the drip account.
const TreasuryAccount = "treasury"

// App holds the wired services.
type App struct {
	Config   config.Config
	PoolFile config.PoolFile

	Ledger    ledger.Ledger
	NFTs      *ledger.NFTRegistry
	Bus       *events.Bus
	Source    *yieldsource.Memory
	RNG       *rng.Local
	Drips     *drip.Engine
	Pool      *pool.Pool
	Scheduler *prize.Scheduler

	Operators identity.Repository
	Identity  *identity.Service
	Auth      *auth.Service

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	// Keeper is nil when KEEPER_ENABLED is false.
	Keeper *keeper.Keeper
}

// Options carry the infrastructure Build runs against. DB and Cache are
// optional; without them state lives in memory and locks are process local.
type Options struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Build wires the ledger, yield source, randomness, drips, pool, scheduler,
// operators and keeper.
func Build(ctx context.Context, cfg config.Config, file config.PoolFile, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, PoolFile: file, NFTs: ledger.NewNFTRegistry(), Bus: events.NewBus()}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)
	a.Metrics.Observe(a.Bus)
	a.Bus.SubscribeAll(events.LogSink(logger.With(slog.String("component", "events"))))
	notification.Subscribe(a.Bus, notification.NewLoggerNotifier(logger), cfg.OwnerName, logger)

	if opts.DB != nil {
		a.Ledger = ledger.NewPostgresLedger(opts.DB)
		a.Operators = identity.NewPostgresRepository(opts.DB)
		a.Bus.SubscribeAll(events.NewPostgresRecorder(opts.DB, logger).Handle)
	} else {
		a.Ledger = ledger.NewInMemory()
		a.Operators = identity.NewMemoryRepository()
	}

	if err := a.registerTokens(ctx, file); err != nil {
		return nil, err
	}

	a.Source = yieldsource.NewMemory(yieldsource.MemoryConfig{
		ID:            file.YieldSourceAccount,
		Owner:         file.ID,
		Token:         file.UnderlyingToken,
		RatePerSecond: file.YieldRatePerSecond.Int(),
	}, a.Ledger, opts.Clock)

	secret := []byte(cfg.RNGSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate rng secret: %w", err)
		}
		logger.Warn("RNG_SECRET not set, using a per-process secret")
	}
	a.RNG = rng.NewLocal(rng.LocalConfig{
		Secret:    secret,
		FeeToken:  file.RNGFeeToken,
		FeeAmount: file.RNGFeeAmount.Int(),
	}, opts.Clock)

	var listener pool.Listener
	if file.DripAccount != "" {
		a.Drips = drip.NewEngine(file.DripAccount, a.Ledger, opts.Clock, a.Bus, logger)
		listener = a.Drips.Listener(file.ID)
	}

	var err error
	a.Pool, err = pool.New(ctx, poolConfig(file), pool.Deps{
		Ledger:   a.Ledger,
		NFTs:     a.NFTs,
		Source:   a.Source,
		Listener: listener,
		Clock:    opts.Clock,
		Bus:      a.Bus,
		Logger:   logger.With(slog.String("component", "pool")),
	})
	if err != nil {
		return nil, fmt.Errorf("build pool: %w", err)
	}

	periodStart := file.PrizePeriodStart
	if periodStart == 0 {
		periodStart = opts.Clock.Now().Unix()
	}
	a.Scheduler, err = prize.NewScheduler(prize.Config{
		PeriodSeconds:     file.PrizePeriodSeconds,
		PeriodStart:       periodStart,
		Strategy:          prize.Strategy{Kind: prize.Kind(file.Strategy), NumberOfWinners: file.NumberOfWinners},
		RNGTimeoutSeconds: file.RNGRequestTimeoutSeconds,
	}, a.Pool, a.RNG, opts.Clock, a.Bus, logger.With(slog.String("component", "prize")))
	if err != nil {
		return nil, fmt.Errorf("build prize scheduler: %w", err)
	}

	if err := a.activateDrips(ctx, file); err != nil {
		return nil, err
	}

	reserved := []string{file.ID, file.YieldSourceAccount, file.RNGFeeAccount, file.DripAccount, TreasuryAccount, keeper.Principal}
	a.Identity = identity.NewService(a.Operators, reserved...)
	if err := a.Identity.EnsureOwner(ctx, identity.Credentials{Name: cfg.OwnerName, Secret: cfg.OwnerSecret}, logger); err != nil {
		return nil, err
	}
	a.Auth = auth.NewService(cfg.JWTSecret, cfg.AccessTokenTTL, a.Identity, a.Operators, opts.Clock)

	if cfg.KeeperEnabled {
		var locker keeper.Locker
		if opts.Cache != nil {
			locker = keeper.NewRedisLocker(opts.Cache)
		}
		a.Keeper, err = keeper.New(cfg.KeeperSchedule, a.Scheduler, a.Pool, locker, a.Metrics, logger.With(slog.String("component", "keeper")))
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// registerTokens lets the yield source mint interest and the treasury fund
// accounts. Drip tokens are never controlled by the pool.
func (a *App) registerTokens(ctx context.Context, file config.PoolFile) error {
	tokens := map[string][]string{
		file.UnderlyingToken: {file.YieldSourceAccount, TreasuryAccount},
	}
	if file.RNGFeeToken != "" && file.RNGFeeToken != file.UnderlyingToken {
		tokens[file.RNGFeeToken] = []string{TreasuryAccount}
	}
	for _, d := range file.BalanceDrips {
		tokens[d.DripToken] = []string{TreasuryAccount}
	}
	for _, d := range file.VolumeDrips {
		tokens[d.DripToken] = []string{TreasuryAccount}
	}
	for id, controllers := range tokens {
		if id == file.TicketToken || id == file.SponsorshipToken {
			return fmt.Errorf("%w: %s is controlled by the pool", pool.ErrInvalidConfiguration, id)
		}
		if err := a.Ledger.RegisterToken(ctx, ledger.Token{ID: id, Controllers: controllers}); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}
	return nil
}

func (a *App) activateDrips(ctx context.Context, file config.PoolFile) error {
	if a.Drips == nil {
		return nil
	}
	ctx = access.WithPrincipal(ctx, access.Principal{ID: a.Config.OwnerName, Role: access.RoleOwner})
	for _, d := range file.BalanceDrips {
		key := drip.BalanceKey{Source: file.ID, Measure: d.Measure, DripToken: d.DripToken}
		if err := a.Drips.ActivateBalanceDrip(ctx, key, d.RatePerSecond.Int()); err != nil {
			return fmt.Errorf("activate balance drip %s/%s: %w", d.Measure, d.DripToken, err)
		}
	}
	for _, d := range file.VolumeDrips {
		params := drip.VolumeParams{
			VolumeKey:     drip.VolumeKey{Source: file.ID, Measure: d.Measure, DripToken: d.DripToken, Referral: d.Referral},
			PeriodSeconds: d.PeriodSeconds,
			DripAmount:    d.DripAmount.Int(),
			StartTime:     d.StartTime,
			EndTime:       d.EndTime,
		}
		if err := a.Drips.ActivateVolumeDrip(ctx, params); err != nil {
			return fmt.Errorf("activate volume drip %s/%s: %w", d.Measure, d.DripToken, err)
		}
	}
	return nil
}

func poolConfig(file config.PoolFile) pool.Config {
	cfg := pool.Config{
		ID:                         file.ID,
		UnderlyingToken:            file.UnderlyingToken,
		TicketToken:                file.TicketToken,
		SponsorshipToken:           file.SponsorshipToken,
		RNGFeeAccount:              file.RNGFeeAccount,
		MaxExitFeeMantissa:         file.MaxExitFeeMantissa.Int(),
		MaxTimelockDurationSeconds: file.MaxTimelockDurationSeconds,
		TimelockDurationSeconds:    file.TimelockDurationSeconds,
		ReserveRateMantissa:        file.ReserveRateMantissa.Int(),
		LiquidityCap:               file.LiquidityCap.Int(),
	}
	if file.CreditRateMantissa.Set() {
		cfg.CreditPlans = map[string]credit.Plan{
			file.TicketToken: {Rate: file.CreditRateMantissa.Int(), Limit: file.CreditLimitMantissa.Int()},
		}
	}
	return cfg
}
