// Package supervisor maps bot records to at most one live worker process
// each.
//
// Operations on one bot id are serialized by a per-id mutex; different ids
// proceed concurrently. The live table is owned by the Supervisor and is
// never persisted. Every operation first reconciles the stored status with
// the live table, so a worker that died on its own is reported stopped on
// the next call.
package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/tgdrive/botmanager/internal/logging"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Process describes one tracked worker.
type Process struct {
	BotID     string    `json:"botId"`
	PID       int       `json:"pid"`
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
}

type process struct {
	Process
	handle Handle
}

type Supervisor struct {
	store    store.Store
	launcher Launcher
	journal  Journal
	grace    time.Duration
	logger   *zap.Logger
	now      func() time.Time

	locks sync.Map // map[string]*sync.Mutex

	mu   sync.Mutex
	live map[string]*process
}

type Option interface {
	apply(s *Supervisor)
}

type fnOption func(s *Supervisor)

func (f fnOption) apply(s *Supervisor) {
	f(s)
}

// WithGracePeriod sets how long a worker may take to exit after SIGTERM.
func WithGracePeriod(d time.Duration) Option {
	return fnOption(func(s *Supervisor) {
		s.grace = d
	})
}

func WithJournal(j Journal) Option {
	return fnOption(func(s *Supervisor) {
		s.journal = j
	})
}

func WithLogger(lg *zap.Logger) Option {
	return fnOption(func(s *Supervisor) {
		s.logger = lg
	})
}

func New(st store.Store, launcher Launcher, options ...Option) *Supervisor {
	s := &Supervisor{
		store:    st,
		launcher: launcher,
		journal:  nopJournal{},
		grace:    5 * time.Second,
		logger:   logging.Component("SUPERVISOR"),
		now:      func() time.Time { return time.Now().UTC() },
		live:     make(map[string]*process),
	}
	for _, o := range options {
		o.apply(s)
	}
	return s
}

func (s *Supervisor) lock(botID string) func() {
	l, _ := s.locks.LoadOrStore(botID, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Supervisor) tracked(botID string) *process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[botID]
}

func (s *Supervisor) track(p *process) {
	s.mu.Lock()
	s.live[p.BotID] = p
	s.mu.Unlock()

	if err := s.journal.Record(p.Process); err != nil {
		s.logger.Warn("supervisor.journal.record", zap.String("bot_id", p.BotID), zap.Error(err))
	}
}

func (s *Supervisor) untrack(botID string) {
	s.mu.Lock()
	delete(s.live, botID)
	s.mu.Unlock()

	if err := s.journal.Forget(botID); err != nil {
		s.logger.Warn("supervisor.journal.forget", zap.String("bot_id", botID), zap.Error(err))
	}
}

// reconcile drops a dead handle and aligns bot.Status with the live
// table. Callers hold the bot's lock.
func (s *Supervisor) reconcile(ctx context.Context, bot *models.Bot) (*process, error) {
	p := s.tracked(bot.BotID)
	if p != nil && !s.launcher.IsAlive(p.handle) {
		fields := []zap.Field{zap.String("bot_id", bot.BotID), zap.Int("pid", p.PID)}
		if e, ok := p.handle.(interface{ ExitErr() error }); ok {
			fields = append(fields, zap.NamedError("exit", e.ExitErr()))
		}
		s.logger.Info("supervisor.exited", fields...)
		s.untrack(bot.BotID)
		p = nil
	}

	var want models.BotStatus
	switch {
	case p == nil && bot.Status == models.BotStatusRunning:
		want = models.BotStatusStopped
	case p != nil && bot.Status != models.BotStatusRunning:
		want = models.BotStatusRunning
	default:
		return p, nil
	}

	if err := s.store.UpdateStatus(ctx, bot.BotID, want); err != nil {
		return p, errors.Wrap(err, "reconcile status")
	}
	s.logger.Debug("supervisor.reconcile", zap.String("bot_id", bot.BotID),
		zap.String("from", string(bot.Status)), zap.String("to", string(want)))
	bot.Status = want
	return p, nil
}

// load fetches the record and reconciles it. Callers hold the bot's lock.
func (s *Supervisor) load(ctx context.Context, botID string) (*models.Bot, *process, error) {
	bot, err := s.store.GetBot(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.reconcile(ctx, bot)
	if err != nil {
		return nil, nil, err
	}
	return bot, p, nil
}

// Start spawns the worker of botID.
func (s *Supervisor) Start(ctx context.Context, botID string) (*Process, error) {
	unlock := s.lock(botID)
	defer unlock()

	bot, p, err := s.load(ctx, botID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return nil, errors.Wrapf(ErrAlreadyRunning, "bot %q (pid %d)", botID, p.PID)
	}
	return s.spawn(ctx, bot)
}

func (s *Supervisor) spawn(ctx context.Context, bot *models.Bot) (*Process, error) {
	cfg := LaunchConfig{
		BotID:         bot.BotID,
		HomeserverURL: bot.HomeserverURL,
		AccountID:     bot.AccountID,
		AccountSecret: bot.AccountSecret,
		UpstreamURL:   bot.UpstreamURL,
		RunID:         uuid.NewString(),
	}
	h, err := s.launcher.Spawn(ctx, cfg)
	if err != nil {
		s.logger.Error("supervisor.launch", zap.String("bot_id", bot.BotID), zap.Error(err))
		return nil, &LaunchError{BotID: bot.BotID, Err: err}
	}

	p := &process{
		Process: Process{
			BotID:     bot.BotID,
			PID:       h.PID(),
			RunID:     cfg.RunID,
			StartedAt: s.now(),
		},
		handle: h,
	}
	s.track(p)

	// The worker exists now; record it even if the caller gave up.
	if err := s.store.UpdateStatus(context.WithoutCancel(ctx), bot.BotID, models.BotStatusRunning); err != nil {
		err = errors.Wrap(err, "set running")
		if terr := s.terminate(ctx, p); terr != nil {
			err = multierr.Append(err, terr)
		}
		return nil, err
	}

	s.logger.Info("supervisor.start", zap.String("bot_id", bot.BotID),
		zap.Int("pid", p.PID), zap.String("run_id", p.RunID))
	out := p.Process
	return &out, nil
}

// terminate stops p and untracks it. On failure p stays tracked.
func (s *Supervisor) terminate(ctx context.Context, p *process) error {
	if err := s.launcher.Terminate(ctx, p.handle, s.grace); err != nil {
		s.logger.Error("supervisor.terminate", zap.String("bot_id", p.BotID),
			zap.Int("pid", p.PID), zap.Error(err))
		return &TerminationError{BotID: p.BotID, PID: p.PID, Err: err}
	}
	s.untrack(p.BotID)
	return nil
}

// Stop terminates the worker of botID, escalating to SIGKILL after the
// grace period. A cancelled ctx shortens the grace period but never skips
// the kill, so the record is read without ctx's cancellation.
func (s *Supervisor) Stop(ctx context.Context, botID string) error {
	unlock := s.lock(botID)
	defer unlock()

	_, p, err := s.load(context.WithoutCancel(ctx), botID)
	if err != nil {
		return s.stopUntracked(ctx, botID, err)
	}
	return s.stop(ctx, botID, p)
}

// stopUntracked kills a tracked worker whose record could not be loaded.
// loadErr is returned either way.
func (s *Supervisor) stopUntracked(ctx context.Context, botID string, loadErr error) error {
	p := s.tracked(botID)
	if p == nil {
		return loadErr
	}
	if err := s.terminate(ctx, p); err != nil {
		return multierr.Append(loadErr, err)
	}
	s.logger.Warn("supervisor.stop", zap.String("bot_id", botID),
		zap.Int("pid", p.PID), zap.NamedError("record", loadErr))
	return loadErr
}

func (s *Supervisor) stop(ctx context.Context, botID string, p *process) error {
	if p == nil {
		return errors.Wrapf(ErrNotRunning, "bot %q", botID)
	}
	if err := s.terminate(ctx, p); err != nil {
		return err
	}
	if err := s.store.UpdateStatus(context.WithoutCancel(ctx), botID, models.BotStatusStopped); err != nil {
		return errors.Wrap(err, "set stopped")
	}
	s.logger.Info("supervisor.stop", zap.String("bot_id", botID), zap.Int("pid", p.PID))
	return nil
}

// Restart stops the worker if it runs and starts a new one without
// releasing the bot's lock in between.
func (s *Supervisor) Restart(ctx context.Context, botID string) (*Process, error) {
	unlock := s.lock(botID)
	defer unlock()

	bot, p, err := s.load(ctx, botID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if err := s.stop(ctx, botID, p); err != nil {
			return nil, err
		}
		bot.Status = models.BotStatusStopped
	}
	return s.spawn(ctx, bot)
}

// Status returns the reconciled status of botID.
func (s *Supervisor) Status(ctx context.Context, botID string) (models.BotStatus, error) {
	unlock := s.lock(botID)
	defer unlock()

	bot, _, err := s.load(ctx, botID)
	if err != nil {
		return "", err
	}
	return bot.Status, nil
}

// Inspect returns the reconciled record and, if running, its process.
func (s *Supervisor) Inspect(ctx context.Context, botID string) (*models.Bot, *Process, error) {
	unlock := s.lock(botID)
	defer unlock()

	bot, p, err := s.load(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return bot, nil, nil
	}
	out := p.Process
	return bot, &out, nil
}

// Delete stops a running worker and then removes the record.
func (s *Supervisor) Delete(ctx context.Context, botID string) error {
	unlock := s.lock(botID)
	defer unlock()

	_, p, err := s.load(ctx, botID)
	if err != nil {
		return err
	}
	if p != nil {
		if err := s.stop(ctx, botID, p); err != nil {
			return err
		}
	}
	if err := s.store.DeleteBot(ctx, botID); err != nil {
		return err
	}
	s.logger.Info("supervisor.delete", zap.String("bot_id", botID))
	return nil
}

// List returns every bot in creation order with reconciled status.
func (s *Supervisor) List(ctx context.Context) ([]models.Bot, error) {
	bots, err := s.store.ListBots(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]models.Bot, 0, len(bots))
	for _, b := range bots {
		bot, err := s.listOne(ctx, b.BotID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		res = append(res, *bot)
	}
	return res, nil
}

func (s *Supervisor) listOne(ctx context.Context, botID string) (*models.Bot, error) {
	unlock := s.lock(botID)
	defer unlock()

	bot, _, err := s.load(ctx, botID)
	return bot, err
}

// Processes returns a snapshot of the live table ordered by bot id.
func (s *Supervisor) Processes() []Process {
	s.mu.Lock()
	res := make([]Process, 0, len(s.live))
	for _, p := range s.live {
		res = append(res, p.Process)
	}
	s.mu.Unlock()

	sort.Slice(res, func(i, j int) bool { return res[i].BotID < res[j].BotID })
	return res
}

// Shutdown stops every tracked worker in parallel. Workers are killed
// even when ctx is already done or their record cannot be read.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, p := range s.Processes() {
		g.Go(func() error {
			err := s.Stop(ctx, p.BotID)
			if err != nil && !errors.Is(err, ErrNotRunning) && !errors.Is(err, store.ErrNotFound) {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Recover stops workers journalled by a previous run and marks every
// record still claiming to run as stopped. Call it once before serving.
func (s *Supervisor) Recover(ctx context.Context) error {
	var errs error

	entries, err := s.journal.Entries()
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "read journal"))
	}
	reaper, canReap := s.launcher.(Reaper)
	for _, e := range entries {
		if s.tracked(e.BotID) != nil {
			continue
		}
		if canReap {
			if err := reaper.Reap(ctx, e, s.grace); err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "reap bot %q (pid %d)", e.BotID, e.PID))
				continue
			}
			s.logger.Info("supervisor.recover.reap", zap.String("bot_id", e.BotID), zap.Int("pid", e.PID))
		}
		if err := s.journal.Forget(e.BotID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	bots, err := s.store.ListBots(ctx)
	if err != nil {
		return multierr.Append(errs, err)
	}
	for _, b := range bots {
		if b.Status != models.BotStatusRunning {
			continue
		}
		if _, err := s.listOne(ctx, b.BotID); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
