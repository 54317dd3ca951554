// Package registrar provisions chat accounts for newly created users.
package registrar

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/logging"
	"go.uber.org/zap"
)

type Registrar interface {
	Register(ctx context.Context, username, password string, admin bool) error
}

// Error is returned when the registration command fails.
type Error struct {
	Username string
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := "register " + e.Username + ": " + e.Err.Error()
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

type nop struct{}

func (nop) Register(context.Context, string, string, bool) error { return nil }

// Nop accepts every registration.
func Nop() Registrar { return nop{} }

type Command struct {
	name    string
	args    []string
	timeout time.Duration
	logger  *zap.Logger
}

// New returns a command registrar, or Nop when no command is configured.
func New(cfg *config.RegistrarConfig) Registrar {
	if cfg.Command == "" {
		return Nop()
	}
	return &Command{
		name:    cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout,
		logger:  logging.Component("REGISTRAR"),
	}
}

func (c *Command) Register(ctx context.Context, username, password string, admin bool) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.name, Expand(c.args, username, password, admin)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err == nil {
		c.logger.Info("registrar.register", zap.String("username", username), zap.Bool("admin", admin))
		return nil
	}
	if strings.Contains(strings.ToLower(output), "already exists") {
		c.logger.Info("registrar.exists", zap.String("username", username))
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Wrap(ctxErr, err.Error())
	}
	return &Error{Username: username, Output: output, Err: err}
}

// Expand substitutes the {{username}}, {{password}} and {{admin}}
// placeholders in args.
func Expand(args []string, username, password string, admin bool) []string {
	r := strings.NewReplacer(
		"{{username}}", username,
		"{{password}}", password,
		"{{admin}}", strconv.FormatBool(admin),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
