package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tgdrive/botmanager/internal/banner"
	"github.com/tgdrive/botmanager/internal/cache"
	"github.com/tgdrive/botmanager/internal/chizap"
	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/cron"
	"github.com/tgdrive/botmanager/internal/kv"
	"github.com/tgdrive/botmanager/internal/logging"
	"github.com/tgdrive/botmanager/internal/middleware"
	"github.com/tgdrive/botmanager/internal/registrar"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/internal/supervisor"
	"github.com/tgdrive/botmanager/internal/version"
	"github.com/tgdrive/botmanager/pkg/services"
)

const journalBucket = "processes"

func NewRun() *cobra.Command {
	var cfg config.ServerCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot manager server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cmd.Context(), &cfg)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Load(cmd, &cfg); err != nil {
				return err
			}
			if err := loader.Validate(); err != nil {
				return err
			}
			return nil
		},
	}
	loader.RegisterFlags(cmd.Flags(), "", cfg, false)
	return cmd
}

func runApplication(ctx context.Context, conf *config.ServerCmdConfig) (err error) {
	setupLogging(&conf.Log)

	lg := logging.DefaultLogger()

	defer lg.Sync()

	var cacher cache.Cacher
	if conf.Cache.TTL > 0 {
		cacher, err = cache.NewCache(ctx, &conf.Cache)
		if err != nil {
			return errors.Wrap(err, "create cache")
		}
	}

	st, err := store.New(ctx, &conf.DB, cacher, conf.Cache.TTL, lg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	journalPath := conf.Supervisor.JournalFile
	if journalPath == "" {
		journalPath = kv.DefaultPath("journal.db")
	}
	journalKV, err := kv.NewBoltKV(journalPath, journalBucket)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	defer func() { err = multierr.Append(err, journalKV.Close()) }()

	launcher, err := supervisor.NewExecLauncher(supervisor.ExecConfig{
		Command:     conf.Worker.Command,
		Args:        conf.Worker.Args,
		LogsDir:     conf.Supervisor.LogsDir,
		KillTimeout: conf.Supervisor.KillTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create launcher")
	}

	sup := supervisor.New(st, launcher,
		supervisor.WithGracePeriod(conf.Supervisor.GracePeriod),
		supervisor.WithJournal(supervisor.NewKVJournal(journalKV)),
	)
	if err := sup.Recover(ctx); err != nil {
		lg.Warn("supervisor.recover", zap.Error(err))
	}

	scheduler := cron.StartCronJobs(ctx, st, conf)

	srv := setupServer(conf, st, sup)

	banner.PrintBanner(os.Stdout, banner.StartupInfo{
		Version:  version.Version,
		Addr:     srv.Addr,
		LogLevel: conf.Log.Level,
		DBDriver: st.Type(),
		LogsDir:  conf.Supervisor.LogsDir,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("server.start", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		lg.Info("server.shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.GracefulShutdown)

		defer shutdownCancel()

		var errs error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "server shutdown"))
		}
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		// Workers get their own budget: HTTP draining may have used up
		// shutdownCtx.
		stopCtx, stopCancel := context.WithTimeout(context.Background(),
			conf.Supervisor.GracePeriod+conf.Supervisor.KillTimeout+time.Second)
		defer stopCancel()
		if err := sup.Shutdown(stopCtx); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "stop workers"))
		}
		return errs
	})

	err = g.Wait()

	lg.Info("server.stop")
	return err
}

func setupServer(cfg *config.ServerCmdConfig, st store.Store, sup *supervisor.Supervisor) *http.Server {

	lg := logging.DefaultLogger()

	apiSrv := services.NewApiService(st, sup, registrar.New(&cfg.Registrar), cfg)

	mux := chi.NewRouter()

	mux.Use(chimiddleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "HEAD"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         86400,
	}))
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.InjectLogger(lg))
	mux.Use(chizap.ChizapWithConfig(lg, &chizap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/healthz"},
	}))
	mux.Get("/healthz", services.Healthz)
	mux.Mount("/api", apiSrv.Routes())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
