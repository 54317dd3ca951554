package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/logging"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "botmanager",
		Short:             "Chat bot process manager",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(NewRun(), NewWorker(), NewMigrate(), NewVersion())
	return cmd
}

func setupLogging(conf *config.LoggingConfig) {
	lvl, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	logging.SetConfig(&logging.Config{
		Level:    lvl,
		FilePath: conf.File,
	})
}
