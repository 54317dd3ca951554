package cmd

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/database"
	"github.com/tgdrive/botmanager/internal/logging"
)

func NewMigrate() *cobra.Command {
	var cfg config.MigrateCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(&cfg.Log)
			lg := logging.Component("MIGRATE")
			defer lg.Sync()

			ctx := cmd.Context()
			switch cfg.DB.Driver {
			case "sqlite":
				db, err := database.OpenSQLite(ctx, &cfg.DB)
				if err != nil {
					return err
				}
				defer db.Close()
				return database.MigrateDB(db, database.DialectSQLite, lg)
			case "postgres":
				pool, err := database.NewPool(ctx, &cfg.DB, lg)
				if err != nil {
					return err
				}
				defer pool.Close()
				return database.MigratePool(pool, lg)
			case "memory":
				lg.Info("migrate.skip", zap.String("driver", cfg.DB.Driver))
				return nil
			}
			return errors.Errorf("unknown db driver %q", cfg.DB.Driver)
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
