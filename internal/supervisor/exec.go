package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ExecConfig struct {
	// Command defaults to the running executable.
	Command string
	Args    []string
	LogsDir string
	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration
	// LogMaxSize is the rotation size of a worker log in megabytes.
	LogMaxSize int
}

// ExecLauncher runs each worker as a child process in its own process
// group, with stdout and stderr going to a rotated per-bot log file.
type ExecLauncher struct {
	cfg ExecConfig
}

var (
	_ Launcher = (*ExecLauncher)(nil)
	_ Reaper   = (*ExecLauncher)(nil)
)

func NewExecLauncher(cfg ExecConfig) (*ExecLauncher, error) {
	if cfg.Command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "resolve executable")
		}
		cfg.Command = exe
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = 2 * time.Second
	}
	if cfg.LogMaxSize <= 0 {
		cfg.LogMaxSize = 10
	}
	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create logs dir")
	}
	return &ExecLauncher{cfg: cfg}, nil
}

// LogPath is the log file of botID under dir.
func LogPath(dir, botID string) string {
	return filepath.Join(dir, "bot_"+botID+".log")
}

// rotatedSuffix matches the timestamp lumberjack puts in backup names.
var rotatedSuffix = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.\d{3}$`)

// BotIDFromLogPath inverts LogPath on the file name. Rotated backups map
// to the bot of the live file.
func BotIDFromLogPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "bot_") || !strings.HasSuffix(name, ".log") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, "bot_"), ".log")
	id = rotatedSuffix.ReplaceAllString(id, "")
	return id, id != ""
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (h *execHandle) PID() int              { return h.cmd.Process.Pid }
func (h *execHandle) Done() <-chan struct{} { return h.done }

// ExitErr is the Wait result; valid once Done is closed.
func (h *execHandle) ExitErr() error {
	<-h.done
	return h.err
}

func (l *ExecLauncher) Spawn(ctx context.Context, cfg LaunchConfig) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.BotID == "" || strings.ContainsAny(cfg.BotID, `/\`) || cfg.BotID == "." || cfg.BotID == ".." {
		return nil, errors.Errorf("invalid bot id %q", cfg.BotID)
	}

	out := &lumberjack.Logger{
		Filename:   LogPath(l.cfg.LogsDir, cfg.BotID),
		MaxSize:    l.cfg.LogMaxSize,
		MaxBackups: 3,
	}

	// Not CommandContext: the worker must outlive the request that started it.
	cmd := exec.Command(l.cfg.Command, l.cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env()...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, err
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		// The pid is reaped now and may be reused; stop signalling it
		// before anything else.
		close(h.done)
		out.Close()
	}()
	return h, nil
}

func (l *ExecLauncher) IsAlive(h Handle) bool {
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}

func (l *ExecLauncher) Terminate(ctx context.Context, h Handle, grace time.Duration) error {
	eh, ok := h.(*execHandle)
	if !ok {
		return errors.Errorf("foreign handle %T", h)
	}
	if !l.IsAlive(eh) {
		return nil
	}

	if err := terminateGroup(eh.cmd); err != nil && !isProcessGone(err) {
		return errors.Wrap(err, "sigterm")
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-eh.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := killGroup(eh.cmd); err != nil && !isProcessGone(err) {
		return errors.Wrap(err, "sigkill")
	}
	select {
	case <-eh.done:
		return nil
	case <-time.After(l.cfg.KillTimeout):
		return ErrTerminationTimeout
	}
}

func (l *ExecLauncher) Reap(ctx context.Context, p Process, grace time.Duration) error {
	if p.PID <= 0 || !processAlive(p.PID) || !belongsToRun(p.PID, p.RunID) {
		return nil
	}
	if err := signalPID(p.PID, false); err != nil && !isProcessGone(err) {
		return errors.Wrap(err, "sigterm")
	}
	if waitGone(ctx, p.PID, grace) {
		return nil
	}
	if err := signalPID(p.PID, true); err != nil && !isProcessGone(err) {
		return errors.Wrap(err, "sigkill")
	}
	if waitGone(context.WithoutCancel(ctx), p.PID, l.cfg.KillTimeout) {
		return nil
	}
	return ErrTerminationTimeout
}

// waitGone polls until pid is gone, d elapses or ctx is done.
func waitGone(ctx context.Context, pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !processAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !processAlive(pid)
		case <-ticker.C:
		}
	}
}
