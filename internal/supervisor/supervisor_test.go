package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	store    store.Store
	launcher *fakeLauncher
	journal  *memJournal
	sup      *Supervisor
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	for _, id := range ids {
		_, err := st.CreateBot(context.Background(), &models.Bot{
			BotID:         id,
			HomeserverURL: "http://h:8008",
			AccountID:     "@" + id + ":h",
			AccountSecret: "pw",
			UpstreamURL:   "http://f:3000/api/x",
		})
		require.NoError(t, err)
	}
	return newFixtureWithStore(st)
}

func newFixtureWithStore(st store.Store) *fixture {
	l := newFakeLauncher()
	j := newMemJournal()
	return &fixture{
		store:    st,
		launcher: l,
		journal:  j,
		sup: New(st, l,
			WithGracePeriod(50*time.Millisecond),
			WithJournal(j),
			WithLogger(zap.NewNop())),
	}
}

func (f *fixture) status(t *testing.T, id string) models.BotStatus {
	t.Helper()
	st, err := f.sup.Status(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	p, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", p.BotID)
	assert.NotZero(t, p.PID)
	assert.NotEmpty(t, p.RunID)

	_, err = f.sup.Start(ctx, "b1")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, 1, f.launcher.alive("b1"))
	assert.Len(t, f.sup.Processes(), 1)
}

func TestUnknownBot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.sup.Stop(ctx, "ghost"), store.ErrNotFound)
	_, err = f.sup.Status(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.sup.Restart(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.sup.Delete(ctx, "ghost"), store.ErrNotFound)
	_, _, err = f.sup.Inspect(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.launcher.alive(""))
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	require.NoError(t, f.sup.Stop(ctx, "b1"))

	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
	assert.Empty(t, f.sup.Processes())
	assert.Zero(t, f.launcher.alive("b1"))
	assert.Equal(t, []string{"b1"}, f.launcher.terminated)
}

func TestStopNotRunning(t *testing.T) {
	f := newFixture(t, "b1")

	err := f.sup.Stop(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, models.BotStatusCreated, f.status(t, "b1"))
}

func TestConcurrentStartDistinctBots(t *testing.T) {
	f := newFixture(t, "b1", "b2")
	f.launcher.spawnDelay = 20 * time.Millisecond
	ctx := context.Background()

	var g errgroup.Group
	for _, id := range []string{"b1", "b2"} {
		g.Go(func() error {
			_, err := f.sup.Start(ctx, id)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, f.launcher.alive("b1"))
	assert.Equal(t, 1, f.launcher.alive("b2"))
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b1"))
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b2"))
	procs := f.sup.Processes()
	require.Len(t, procs, 2)
	assert.NotEqual(t, procs[0].PID, procs[1].PID)
}

func TestConcurrentStartSameBot(t *testing.T) {
	f := newFixture(t, "b1")
	f.launcher.spawnDelay = 10 * time.Millisecond
	ctx := context.Background()

	var ok, already atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := f.sup.Start(ctx, "b1")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyRunning):
				already.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(9), already.Load())
	assert.Equal(t, 1, f.launcher.alive("b1"))
}

func TestConcurrentStartStopSameBot(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			var err error
			if i%2 == 0 {
				_, err = f.sup.Start(ctx, "b1")
			} else {
				err = f.sup.Stop(ctx, "b1")
			}
			if err != nil && !errors.Is(err, ErrAlreadyRunning) && !errors.Is(err, ErrNotRunning) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	alive := f.launcher.alive("b1")
	assert.LessOrEqual(t, alive, 1)
	status := f.status(t, "b1")
	if alive == 1 {
		assert.Equal(t, models.BotStatusRunning, status)
	} else {
		assert.NotEqual(t, models.BotStatusRunning, status)
	}
}

func TestCrashIsReconciled(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	f.launcher.last().crash()

	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
	assert.Empty(t, f.sup.Processes())
	assert.Empty(t, f.journal.entries)

	_, err = f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b1"))
}

func TestCrashThenStop(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	f.launcher.last().crash()

	assert.ErrorIs(t, f.sup.Stop(ctx, "b1"), ErrNotRunning)
	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
}

func TestScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateBot(ctx, &models.Bot{
		BotID:         "b1",
		HomeserverURL: "http://h:8008",
		AccountID:     "@b1:h",
		AccountSecret: "pw",
		UpstreamURL:   "http://f:3000/api/x",
	})
	require.NoError(t, err)

	_, err = f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b1"))

	cfg := f.launcher.last().cfg
	assert.Equal(t, "b1", cfg.BotID)
	assert.Equal(t, "http://h:8008", cfg.HomeserverURL)
	assert.Equal(t, "@b1:h", cfg.AccountID)
	assert.Equal(t, "pw", cfg.AccountSecret)
	assert.Equal(t, "http://f:3000/api/x", cfg.UpstreamURL)

	require.NoError(t, f.sup.Stop(ctx, "b1"))
	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
}

func TestLaunchError(t *testing.T) {
	f := newFixture(t, "b1")
	f.launcher.spawnErr = errors.New("exec: not found")

	_, err := f.sup.Start(context.Background(), "b1")
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "b1", launchErr.BotID)
	assert.EqualError(t, launchErr.Err, "exec: not found")

	assert.Equal(t, models.BotStatusCreated, f.status(t, "b1"))
	assert.Empty(t, f.sup.Processes())
}

func TestTerminationFailureKeepsTracking(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	f.launcher.stubborn = true

	err = f.sup.Stop(ctx, "b1")
	var termErr *TerminationError
	require.ErrorAs(t, err, &termErr)
	assert.ErrorIs(t, err, ErrTerminationTimeout)
	assert.Equal(t, "b1", termErr.BotID)

	assert.Len(t, f.sup.Processes(), 1)
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b1"))

	f.launcher.stubborn = false
	require.NoError(t, f.sup.Stop(ctx, "b1"))
	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
}

func TestStatusWriteFailureTerminatesWorker(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.CreateBot(context.Background(), &models.Bot{BotID: "b1"})
	require.NoError(t, err)
	f := newFixtureWithStore(&failingStore{Store: mem, failOn: models.BotStatusRunning})

	_, err = f.sup.Start(context.Background(), "b1")
	assert.ErrorIs(t, err, errStoreDown)

	assert.Zero(t, f.launcher.alive("b1"))
	assert.Empty(t, f.sup.Processes())
	bot, err := mem.GetBot(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusCreated, bot.Status)
}

func TestRestart(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	first, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	second, err := f.sup.Restart(ctx, "b1")
	require.NoError(t, err)

	assert.NotEqual(t, first.PID, second.PID)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 1, f.launcher.alive("b1"))
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b1"))

	// Restart of a stopped bot just starts it.
	require.NoError(t, f.sup.Stop(ctx, "b1"))
	_, err = f.sup.Restart(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b1"))
}

func TestDeleteStopsFirst(t *testing.T) {
	f := newFixture(t, "b1", "b2")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, f.sup.Delete(ctx, "b1"))
	require.NoError(t, f.sup.Delete(ctx, "b2"))

	assert.Zero(t, f.launcher.alive(""))
	assert.Empty(t, f.sup.Processes())
	_, err = f.store.GetBot(ctx, "b1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetBot(ctx, "b2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteKeepsRecordWhenStopFails(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	f.launcher.stubborn = true

	assert.ErrorIs(t, f.sup.Delete(ctx, "b1"), ErrTerminationTimeout)
	_, err = f.store.GetBot(ctx, "b1")
	assert.NoError(t, err)
}

func TestListReconciles(t *testing.T) {
	f := newFixture(t, "b1", "b2", "b3")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	_, err = f.sup.Start(ctx, "b2")
	require.NoError(t, err)
	f.launcher.last().crash()

	bots, err := f.sup.List(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 3)
	assert.Equal(t, "b1", bots[0].BotID)
	assert.Equal(t, models.BotStatusRunning, bots[0].Status)
	assert.Equal(t, models.BotStatusStopped, bots[1].Status)
	assert.Equal(t, models.BotStatusCreated, bots[2].Status)
}

func TestStaleRunningStatusIsCorrected(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()
	require.NoError(t, f.store.UpdateStatus(ctx, "b1", models.BotStatusRunning))

	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
	_, err := f.sup.Start(ctx, "b1")
	assert.NoError(t, err)
}

func TestInspect(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	bot, p, err := f.sup.Inspect(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, models.BotStatusCreated, bot.Status)

	started, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	bot, p, err = f.sup.Inspect(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, started.PID, p.PID)
	assert.Equal(t, models.BotStatusRunning, bot.Status)
}

func TestStopDoesNotBlockOtherBots(t *testing.T) {
	f := newFixture(t, "b1", "b2")
	ctx := context.Background()

	_, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)

	f.launcher.gate = make(chan struct{})
	stopped := make(chan error, 1)
	go func() { stopped <- f.sup.Stop(ctx, "b1") }()

	// b1 is stuck in Terminate; b2 must still start.
	_, err = f.sup.Start(ctx, "b2")
	require.NoError(t, err)
	select {
	case <-stopped:
		t.Fatal("stop returned before the gate opened")
	default:
	}

	close(f.launcher.gate)
	require.NoError(t, <-stopped)
	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
	assert.Equal(t, models.BotStatusRunning, f.status(t, "b2"))
}

func TestJournal(t *testing.T) {
	f := newFixture(t, "b1")
	ctx := context.Background()

	p, err := f.sup.Start(ctx, "b1")
	require.NoError(t, err)
	entries, err := f.journal.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.PID, entries[0].PID)
	assert.Equal(t, p.RunID, entries[0].RunID)

	require.NoError(t, f.sup.Stop(ctx, "b1"))
	entries, err = f.journal.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecover(t *testing.T) {
	f := newFixture(t, "b1", "b2", "b3")
	ctx := context.Background()
	require.NoError(t, f.store.UpdateStatus(ctx, "b1", models.BotStatusRunning))
	require.NoError(t, f.store.UpdateStatus(ctx, "b2", models.BotStatusStopped))
	require.NoError(t, f.journal.Record(Process{BotID: "b1", PID: 4242, RunID: "old-run"}))

	require.NoError(t, f.sup.Recover(ctx))

	require.Len(t, f.launcher.reaped, 1)
	assert.Equal(t, 4242, f.launcher.reaped[0].PID)
	assert.Empty(t, f.journal.entries)

	bot, err := f.store.GetBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusStopped, bot.Status)
	bot, err = f.store.GetBot(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusCreated, bot.Status)
}

func TestShutdown(t *testing.T) {
	ids := []string{"b1", "b2", "b3"}
	f := newFixture(t, ids...)
	ctx := context.Background()
	for _, id := range ids {
		_, err := f.sup.Start(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, f.sup.Shutdown(ctx))
	assert.Empty(t, f.sup.Processes())
	assert.Zero(t, f.launcher.alive(""))
	for _, id := range ids {
		assert.Equal(t, models.BotStatusStopped, f.status(t, id), id)
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	f := newFixture(t, "b1", "b2")
	ctx := context.Background()
	for _, id := range []string{"b1", "b2"} {
		_, err := f.sup.Start(ctx, id)
		require.NoError(t, err)
	}
	f.launcher.stubborn = true

	err := f.sup.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTerminationTimeout)
	assert.Len(t, f.sup.Processes(), 2)
}

func newSQLiteFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	st, err := store.New(context.Background(), &config.DBConfig{
		Driver:     "sqlite",
		DataSource: filepath.Join(t.TempDir(), "bots.db"),
		Migrate:    true,
	}, nil, 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	for _, id := range ids {
		_, err := st.CreateBot(context.Background(), &models.Bot{
			BotID:         id,
			HomeserverURL: "http://h:8008",
			AccountID:     "@" + id + ":h",
			AccountSecret: "pw",
			UpstreamURL:   "http://f:3000/api/x",
		})
		require.NoError(t, err)
	}
	return newFixtureWithStore(st)
}

func TestStopWithCancelledContext(t *testing.T) {
	f := newSQLiteFixture(t, "b1")
	_, err := f.sup.Start(context.Background(), "b1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.sup.Stop(ctx, "b1"))

	assert.Empty(t, f.sup.Processes())
	assert.Zero(t, f.launcher.alive("b1"))
	assert.Equal(t, models.BotStatusStopped, f.status(t, "b1"))
}

func TestShutdownWithCancelledContext(t *testing.T) {
	ids := []string{"b1", "b2"}
	f := newSQLiteFixture(t, ids...)
	for _, id := range ids {
		_, err := f.sup.Start(context.Background(), id)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.sup.Shutdown(ctx))

	assert.Empty(t, f.sup.Processes())
	assert.Zero(t, f.launcher.alive(""))
	for _, id := range ids {
		assert.Equal(t, models.BotStatusStopped, f.status(t, id), id)
	}
}

func TestShutdownKillsWorkerWithUnreadableRecord(t *testing.T) {
	base := store.NewMemoryStore()
	_, err := base.CreateBot(context.Background(), &models.Bot{BotID: "b1", UpstreamURL: "http://f"})
	require.NoError(t, err)
	rs := &switchStore{Store: base}
	f := newFixtureWithStore(rs)

	_, err = f.sup.Start(context.Background(), "b1")
	require.NoError(t, err)
	rs.broken.Store(true)

	err = f.sup.Shutdown(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, f.sup.Processes())
	assert.Zero(t, f.launcher.alive("b1"))
}

// switchStore fails every GetBot once broken is set.
type switchStore struct {
	store.Store
	broken atomic.Bool
}

func (s *switchStore) GetBot(ctx context.Context, botID string) (*models.Bot, error) {
	if s.broken.Load() {
		return nil, errStoreDown
	}
	return s.Store.GetBot(ctx, botID)
}

func TestManyBots(t *testing.T) {
	var ids []string
	for i := 0; i < 25; i++ {
		ids = append(ids, fmt.Sprintf("bot-%02d", i))
	}
	f := newFixture(t, ids...)
	ctx := context.Background()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if _, err := f.sup.Start(ctx, id); err != nil {
				return err
			}
			return f.sup.Stop(ctx, id)
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, f.launcher.alive(""))
	assert.Empty(t, f.sup.Processes())
}
