// Package keeper runs the permissionless maintenance of the pool on a cron
// schedule: starting and completing awards and sweeping matured timelocks.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/metrics"
	"github.com/congo-pay/prizepool/internal/prize"
	"github.com/congo-pay/prizepool/internal/rng"
	"github.com/congo-pay/prizepool/internal/timelock"
)

const (
	lockKey        = "prizepool:keeper:lock"
	defaultLockTTL = 30 * time.Second
	// Principal is the identity keeper calls run as.
	Principal = "keeper"
)

// Scheduler is the part of the prize scheduler the keeper drives.
type Scheduler interface {
	CanStartAward() bool
	CanCompleteAward(ctx context.Context) bool
	Start(ctx context.Context) (rng.Request, error)
	Complete(ctx context.Context) (prize.Payout, error)
}

// Sweeper releases matured timelocks.
type Sweeper interface {
	MaturedTimelockHolders() []string
	SweepTimelockBalances(ctx context.Context, holders []string) ([]timelock.Swept, error)
}

// Keeper ticks on a cron schedule.
type Keeper struct {
	cron      *cron.Cron
	schedule  string
	scheduler Scheduler
	sweeper   Sweeper
	locker    Locker
	lockTTL   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a keeper. A nil locker serializes ticks in process; nil metrics
// are skipped.
func New(schedule string, scheduler Scheduler, sweeper Sweeper, locker Locker, m *metrics.Metrics, logger *slog.Logger) (*Keeper, error) {
	if locker == nil {
		locker = &LocalLocker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	k := &Keeper{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule:  schedule,
		scheduler: scheduler,
		sweeper:   sweeper,
		locker:    locker,
		lockTTL:   defaultLockTTL,
		metrics:   m,
		logger:    logger,
	}
	if _, err := k.cron.AddFunc(schedule, func() {
		if err := k.Tick(context.Background()); err != nil {
			k.logger.Error("keeper tick", slog.Any("error", err))
		}
	}); err != nil {
		return nil, fmt.Errorf("register keeper schedule %q: %w", schedule, err)
	}
	return k, nil
}

// Run starts the cron loop and blocks until ctx is done, then waits for a
// running tick to finish.
func (k *Keeper) Run(ctx context.Context) error {
	k.cron.Start()
	k.logger.Info("keeper started", slog.String("schedule", k.schedule))
	<-ctx.Done()
	<-k.cron.Stop().Done()
	k.logger.Info("keeper stopped")
	return nil
}

// Tick runs one round of maintenance if this replica wins the lock.
func (k *Keeper) Tick(ctx context.Context) error {
	release, ok, err := k.locker.TryLock(ctx, lockKey, k.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire keeper lock: %w", err)
	}
	if !ok {
		k.logger.Debug("keeper lock held elsewhere")
		return nil
	}
	defer release()

	ctx = access.WithPrincipal(ctx, access.Principal{ID: Principal, Role: access.RoleKeeper})
	var errs []error
	if k.scheduler.CanStartAward() {
		_, err := k.scheduler.Start(ctx)
		k.record(ctx, "start_award", err)
		errs = append(errs, err)
	}
	if k.scheduler.CanCompleteAward(ctx) {
		_, err := k.scheduler.Complete(ctx)
		k.record(ctx, "complete_award", err)
		errs = append(errs, err)
	}
	if holders := k.sweeper.MaturedTimelockHolders(); len(holders) > 0 {
		swept, err := k.sweeper.SweepTimelockBalances(ctx, holders)
		k.record(ctx, "sweep_timelocks", err)
		if err == nil {
			k.logger.InfoContext(ctx, "timelocks swept", slog.Int("holders", len(swept)))
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (k *Keeper) record(ctx context.Context, job string, err error) {
	if k.metrics != nil {
		k.metrics.KeeperRun(job, err)
	}
	if err != nil {
		k.logger.WarnContext(ctx, "keeper job failed", slog.String("job", job), slog.Any("error", err))
	}
}
