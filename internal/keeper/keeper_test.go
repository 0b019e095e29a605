package keeper

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/access"
	"github.com/congo-pay/prizepool/internal/logging"
	"github.com/congo-pay/prizepool/internal/metrics"
	"github.com/congo-pay/prizepool/internal/prize"
	"github.com/congo-pay/prizepool/internal/rng"
	"github.com/congo-pay/prizepool/internal/timelock"
)

type fakeScheduler struct {
	canStart    bool
	canComplete bool
	started     int
	completed   int
	startErr    error
	roles       []access.Role
}

func (f *fakeScheduler) CanStartAward() bool                   { return f.canStart }
func (f *fakeScheduler) CanCompleteAward(context.Context) bool { return f.canComplete }

func (f *fakeScheduler) Start(ctx context.Context) (rng.Request, error) {
	f.started++
	if p, ok := access.FromContext(ctx); ok {
		f.roles = append(f.roles, p.Role)
	}
	return rng.Request{ID: "1"}, f.startErr
}

func (f *fakeScheduler) Complete(context.Context) (prize.Payout, error) {
	f.completed++
	return prize.Payout{}, nil
}

type fakeSweeper struct {
	matured []string
	swept   [][]string
}

func (f *fakeSweeper) MaturedTimelockHolders() []string { return f.matured }

func (f *fakeSweeper) SweepTimelockBalances(_ context.Context, holders []string) ([]timelock.Swept, error) {
	f.swept = append(f.swept, holders)
	out := make([]timelock.Swept, 0, len(holders))
	for _, h := range holders {
		out = append(out, timelock.Swept{Holder: h, Amount: big.NewInt(1)})
	}
	return out, nil
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client), mr
}

func TestTickRunsDueJobsAsKeeper(t *testing.T) {
	sched := &fakeScheduler{canStart: true, canComplete: true}
	sweep := &fakeSweeper{matured: []string{"alice", "bob"}}
	m := metrics.New(prometheus.NewRegistry())
	locker, _ := newRedisLocker(t)

	k, err := New("@every 1m", sched, sweep, locker, m, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, k.Tick(context.Background()))

	require.Equal(t, 1, sched.started)
	require.Equal(t, 1, sched.completed)
	require.Equal(t, []access.Role{access.RoleKeeper}, sched.roles)
	require.Equal(t, [][]string{{"alice", "bob"}}, sweep.swept)
	require.Equal(t, 1.0, testutil.ToFloat64(m.KeeperRunsTotal.WithLabelValues("sweep_timelocks", "ok")))
}

func TestTickSkipsIdleJobs(t *testing.T) {
	sched := &fakeScheduler{}
	sweep := &fakeSweeper{}
	k, err := New("@every 1m", sched, sweep, nil, nil, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, k.Tick(context.Background()))
	require.Zero(t, sched.started)
	require.Zero(t, sched.completed)
	require.Empty(t, sweep.swept)
}

func TestTickReportsJobErrors(t *testing.T) {
	boom := errors.New("boom")
	sched := &fakeScheduler{canStart: true, startErr: boom}
	sweep := &fakeSweeper{matured: []string{"alice"}}
	m := metrics.New(prometheus.NewRegistry())
	k, err := New("@every 1m", sched, sweep, nil, m, logging.Discard())
	require.NoError(t, err)

	err = k.Tick(context.Background())
	require.ErrorIs(t, err, boom)
	require.Len(t, sweep.swept, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.KeeperRunsTotal.WithLabelValues("start_award", "error")))
}

func TestTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	locker, mr := newRedisLocker(t)
	require.NoError(t, mr.Set(lockKey, "other-replica"))

	sched := &fakeScheduler{canStart: true}
	k, err := New("@every 1m", sched, &fakeSweeper{}, locker, nil, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, k.Tick(context.Background()))
	require.Zero(t, sched.started)

	got, err := mr.Get(lockKey)
	require.NoError(t, err)
	require.Equal(t, "other-replica", got)
}

func TestRedisLockerReleasesOnlyOwnLease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "lease", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("lease"))

	_, ok, err = locker.TryLock(ctx, "lease", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	release()
	require.False(t, mr.Exists("lease"))

	release2, ok, err := locker.TryLock(ctx, "lease", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	// A stale release from the first holder must not drop the new lease.
	release()
	require.True(t, mr.Exists("lease"))
	release2()
}

func TestLocalLockerIsExclusive(t *testing.T) {
	var l LocalLocker
	release, ok, err := l.TryLock(context.Background(), lockKey, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(context.Background(), lockKey, time.Second)
	require.False(t, ok)
	release()

	_, ok, _ = l.TryLock(context.Background(), lockKey, time.Second)
	require.True(t, ok)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("not a schedule", &fakeScheduler{}, &fakeSweeper{}, nil, nil, logging.Discard())
	require.Error(t, err)
}
