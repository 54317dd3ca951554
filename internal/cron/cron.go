package cron

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/logging"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/internal/supervisor"
	"github.com/tgdrive/botmanager/pkg/models"
)

type CronService struct {
	store     store.Store
	logsDir   string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewCronService(st store.Store, conf *config.ServerCmdConfig) *CronService {
	return &CronService{
		store:     st,
		logsDir:   conf.Supervisor.LogsDir,
		retention: conf.CronJobs.LogRetention,
		logger:    logging.Component("CRON"),
		now:       time.Now,
	}
}

// StartCronJobs schedules the jobs and starts the scheduler. It returns
// nil when jobs are disabled; otherwise the caller stops the scheduler.
func StartCronJobs(ctx context.Context, st store.Store, conf *config.ServerCmdConfig) *cron.Cron {
	if !conf.CronJobs.Enable {
		return nil
	}
	c := NewCronService(st, conf)
	scheduler := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	scheduler.Schedule(cron.Every(conf.CronJobs.CleanLogsInterval), cron.FuncJob(func() {
		if err := c.CleanLogs(ctx); err != nil {
			c.logger.Error("cron.clean_logs", zap.Error(err))
		}
	}))

	scheduler.Start()
	return scheduler
}

// CleanLogs removes worker logs of bots that no longer exist and logs
// untouched for longer than the retention. The live log of a running bot
// is kept.
func (c *CronService) CleanLogs(ctx context.Context) error {
	bots, err := c.store.ListBots(ctx)
	if err != nil {
		return errors.Wrap(err, "list bots")
	}
	known := make(map[string]models.BotStatus, len(bots))
	for _, b := range bots {
		known[b.BotID] = b.Status
	}

	entries, err := os.ReadDir(c.logsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "read logs dir")
	}

	var (
		errs    error
		removed int
		cutoff  = c.now().Add(-c.retention)
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		botID, ok := supervisor.BotIDFromLogPath(e.Name())
		if !ok {
			continue
		}
		status, exists := known[botID]
		if !exists {
			// The bot may have been created after the snapshot.
			bot, err := c.store.GetBot(ctx, botID)
			switch {
			case err == nil:
				status, exists = bot.Status, true
				known[botID] = status
			case !errors.Is(err, store.ErrNotFound):
				errs = multierr.Append(errs, errors.Wrapf(err, "get bot %q", botID))
				continue
			}
		}
		if exists {
			if status == models.BotStatusRunning && e.Name() == filepath.Base(supervisor.LogPath(c.logsDir, botID)) {
				continue
			}
			if c.retention <= 0 {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
		}
		path := filepath.Join(c.logsDir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, errors.Wrapf(err, "remove %s", path))
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("cron.clean_logs", zap.Int("removed", removed))
	}
	return errs
}
