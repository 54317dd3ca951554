//go:build !windows

package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/pkg/models"
	"go.uber.org/zap"
)

func shellLauncher(t *testing.T, script string) *ExecLauncher {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	l, err := NewExecLauncher(ExecConfig{
		Command:     sh,
		Args:        []string{"-c", script},
		LogsDir:     filepath.Join(t.TempDir(), "logs"),
		KillTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return l
}

func testLaunchConfig(id string) LaunchConfig {
	return LaunchConfig{
		BotID:         id,
		HomeserverURL: "http://h:8008",
		AccountID:     "@" + id + ":h",
		AccountSecret: "pw",
		UpstreamURL:   "http://f:3000/api/x",
		RunID:         "run-" + id,
	}
}

func TestExecLauncherEnvAndLog(t *testing.T) {
	l := shellLauncher(t, `echo "id=$BOT_ID hs=$BOT_HOMESERVER user=$BOT_USER_ID pw=$BOT_PASSWORD up=$BOT_FLOWISE_URL run=$BOT_RUN_ID"`)
	h, err := l.Spawn(context.Background(), testLaunchConfig("alpha"))
	require.NoError(t, err)
	assert.Greater(t, h.PID(), 0)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	assert.False(t, l.IsAlive(h))

	lines, err := TailLog(LogPath(l.cfg.LogsDir, "alpha"), 10, 1<<20)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "id=alpha hs=http://h:8008 user=@alpha:h pw=pw up=http://f:3000/api/x run=run-alpha", lines[0])
}

func TestExecLauncherTerminateGraceful(t *testing.T) {
	l := shellLauncher(t, `trap 'echo bye; exit 0' TERM; while true; do sleep 0.05; done`)
	h, err := l.Spawn(context.Background(), testLaunchConfig("alpha"))
	require.NoError(t, err)
	// Give the shell time to install the trap.
	time.Sleep(200 * time.Millisecond)
	require.True(t, l.IsAlive(h))

	require.NoError(t, l.Terminate(context.Background(), h, 5*time.Second))
	assert.False(t, l.IsAlive(h))
}

func TestExecLauncherTerminateEscalates(t *testing.T) {
	l := shellLauncher(t, `trap '' TERM; while true; do sleep 0.05; done`)
	h, err := l.Spawn(context.Background(), testLaunchConfig("alpha"))
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Terminate(context.Background(), h, 200*time.Millisecond))
	assert.False(t, l.IsAlive(h))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	eh := h.(*execHandle)
	var exitErr *exec.ExitError
	require.ErrorAs(t, eh.ExitErr(), &exitErr)
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGKILL, ws.Signal())
}

func TestExecLauncherCancelledContextSkipsGrace(t *testing.T) {
	l := shellLauncher(t, `trap '' TERM; while true; do sleep 0.05; done`)
	h, err := l.Spawn(context.Background(), testLaunchConfig("alpha"))
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.NoError(t, l.Terminate(ctx, h, time.Hour))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, l.IsAlive(h))
}

func TestExecLauncherExitedWorker(t *testing.T) {
	l := shellLauncher(t, `echo done; exit 3`)
	h, err := l.Spawn(context.Background(), testLaunchConfig("alpha"))
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	assert.False(t, l.IsAlive(h))

	var exitErr *exec.ExitError
	require.ErrorAs(t, h.(*execHandle).ExitErr(), &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())

	// A reaped worker is never signalled again.
	start := time.Now()
	require.NoError(t, l.Terminate(context.Background(), h, time.Hour))
	assert.Less(t, time.Since(start), time.Second)

	lines, err := TailLog(LogPath(l.cfg.LogsDir, "alpha"), 10, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, lines)
}

func TestExecLauncherSpawnErrors(t *testing.T) {
	l, err := NewExecLauncher(ExecConfig{
		Command: filepath.Join(t.TempDir(), "missing-binary"),
		LogsDir: t.TempDir(),
	})
	require.NoError(t, err)

	_, err = l.Spawn(context.Background(), testLaunchConfig("alpha"))
	assert.Error(t, err)

	_, err = l.Spawn(context.Background(), testLaunchConfig("../escape"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Spawn(ctx, testLaunchConfig("alpha"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecLauncherReap(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	l, err := NewExecLauncher(ExecConfig{Command: sh, LogsDir: t.TempDir(), KillTimeout: 2 * time.Second})
	require.NoError(t, err)

	orphan := exec.Command(sh, "-c", `trap '' TERM; while true; do sleep 0.05; done`)
	orphan.Env = append(os.Environ(), EnvRunID+"=old-run")
	setProcessGroup(orphan)
	require.NoError(t, orphan.Start())
	exited := make(chan struct{})
	go func() {
		_ = orphan.Wait()
		close(exited)
	}()
	time.Sleep(200 * time.Millisecond)
	pid := orphan.Process.Pid

	// A different run id must not be touched.
	require.NoError(t, l.Reap(context.Background(), Process{BotID: "alpha", PID: pid, RunID: "other"}, 100*time.Millisecond))
	if _, err := os.Stat("/proc/self/environ"); err == nil {
		assert.True(t, processAlive(pid))
	}

	require.NoError(t, l.Reap(context.Background(), Process{BotID: "alpha", PID: pid, RunID: "old-run"}, 100*time.Millisecond))
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("orphan survived reap")
	}
}

func TestSupervisorWithExecLauncher(t *testing.T) {
	l := shellLauncher(t, `while true; do sleep 0.05; done`)
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.CreateBot(ctx, &models.Bot{
		BotID:         "b1",
		HomeserverURL: "http://h:8008",
		AccountID:     "@b1:h",
		AccountSecret: "pw",
		UpstreamURL:   "http://f:3000/api/x",
	})
	require.NoError(t, err)
	sup := New(st, l, WithGracePeriod(time.Second), WithLogger(zap.NewNop()))

	p, err := sup.Start(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, processAlive(p.PID))

	status, err := sup.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusRunning, status)

	require.NoError(t, sup.Stop(ctx, "b1"))
	status, err = sup.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusStopped, status)
	assert.Empty(t, sup.Processes())
}

func TestLogPath(t *testing.T) {
	path := LogPath("/var/log/bots", "alpha")
	assert.Equal(t, "/var/log/bots/bot_alpha.log", path)

	id, ok := BotIDFromLogPath(path)
	assert.True(t, ok)
	assert.Equal(t, "alpha", id)

	id, ok = BotIDFromLogPath("/var/log/bots/bot_alpha-2026-03-01T10-00-00.000.log")
	assert.True(t, ok)
	assert.Equal(t, "alpha", id)

	_, ok = BotIDFromLogPath(path + ".1")
	assert.False(t, ok)
	_, ok = BotIDFromLogPath("/var/log/bots/botmanager.log")
	assert.False(t, ok)
}
