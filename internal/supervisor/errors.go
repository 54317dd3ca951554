package supervisor

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	ErrAlreadyRunning = errors.New("bot already running")
	ErrNotRunning     = errors.New("bot not running")
	// ErrTerminationTimeout means the worker survived SIGTERM, the grace
	// period and the forced kill.
	ErrTerminationTimeout = errors.New("worker did not exit after forced kill")
)

// LaunchError is returned by Start when the worker process could not be
// created.
type LaunchError struct {
	BotID string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch bot %q: %v", e.BotID, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TerminationError is returned by Stop when the worker could not be
// terminated. The process stays tracked.
type TerminationError struct {
	BotID string
	PID   int
	Err   error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("terminate bot %q (pid %d): %v", e.BotID, e.PID, e.Err)
}

func (e *TerminationError) Unwrap() error { return e.Err }
