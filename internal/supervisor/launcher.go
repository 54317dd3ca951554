package supervisor

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Worker environment. This is the stable launch contract between the
// supervisor and any worker binary.
const (
	EnvBotID      = "BOT_ID"
	EnvHomeserver = "BOT_HOMESERVER"
	EnvUserID     = "BOT_USER_ID"
	EnvPassword   = "BOT_PASSWORD"
	EnvUpstream   = "BOT_FLOWISE_URL"
	EnvRunID      = "BOT_RUN_ID"
)

type LaunchConfig struct {
	BotID         string
	HomeserverURL string
	AccountID     string
	AccountSecret string
	UpstreamURL   string
	// RunID is unique per spawn.
	RunID string
}

// Env returns the launch contract as KEY=value pairs.
func (c LaunchConfig) Env() []string {
	return []string{
		EnvBotID + "=" + c.BotID,
		EnvHomeserver + "=" + c.HomeserverURL,
		EnvUserID + "=" + c.AccountID,
		EnvPassword + "=" + c.AccountSecret,
		EnvUpstream + "=" + c.UpstreamURL,
		EnvRunID + "=" + c.RunID,
	}
}

// LaunchConfigFromEnv is the worker side of Env.
func LaunchConfigFromEnv(lookup func(string) (string, bool)) (LaunchConfig, error) {
	var (
		c       LaunchConfig
		missing []string
	)
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{EnvBotID, &c.BotID},
		{EnvHomeserver, &c.HomeserverURL},
		{EnvUserID, &c.AccountID},
		{EnvPassword, &c.AccountSecret},
		{EnvUpstream, &c.UpstreamURL},
	} {
		val, ok := lookup(v.name)
		if !ok || val == "" {
			missing = append(missing, v.name)
			continue
		}
		*v.dst = val
	}
	c.RunID, _ = lookup(EnvRunID)
	if len(missing) > 0 {
		return c, errors.Errorf("missing environment: %v", missing)
	}
	return c, nil
}

// Handle refers to one spawned worker.
type Handle interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// Launcher creates and stops worker processes.
type Launcher interface {
	Spawn(ctx context.Context, cfg LaunchConfig) (Handle, error)
	// Terminate asks the worker to exit, waits up to grace, then kills it.
	// It returns an error wrapping ErrTerminationTimeout if the process
	// is still alive after the kill. A cancelled ctx cuts the grace
	// period short but never skips the kill.
	Terminate(ctx context.Context, h Handle, grace time.Duration) error
	IsAlive(h Handle) bool
}

// Reaper is implemented by launchers that can stop a worker left behind
// by a previous supervisor run, where only the journal entry is known.
type Reaper interface {
	Reap(ctx context.Context, p Process, grace time.Duration) error
}
