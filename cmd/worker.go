package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/logging"
	"github.com/tgdrive/botmanager/internal/supervisor"
	"github.com/tgdrive/botmanager/internal/worker"
)

// NewWorker is the command the supervisor launches for each bot. The bot
// is described by the BOT_* environment variables.
func NewWorker() *cobra.Command {
	var cfg config.WorkerCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a bot worker (started by the supervisor)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(&cfg.Log)
			lg := logging.Component("WORKER")
			defer lg.Sync()

			launch, err := supervisor.LaunchConfigFromEnv(os.LookupEnv)
			if err != nil {
				return err
			}
			lg.Info("worker.start", zap.String("bot_id", launch.BotID), zap.String("run_id", launch.RunID))
			if err := worker.New(launch, cfg.Chat, lg).Run(cmd.Context()); err != nil {
				lg.Error("worker.exit", zap.Error(err))
				return err
			}
			lg.Info("worker.stop", zap.String("bot_id", launch.BotID))
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Load(cmd, &cfg); err != nil {
				return err
			}
			return loader.Validate()
		},
	}
	loader.RegisterFlags(cmd.Flags(), "", cfg, false)
	return cmd
}
