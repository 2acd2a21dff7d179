package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/transfa/assistant-service/internal/config"
	"github.com/transfa/assistant-service/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stdout, slog.LevelInfo)
			cfg, err := config.LoadConfig(logger)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return errors.New("migrate requires STORE_DRIVER=postgres")
			}

			pool, err := openPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.NewPostgresRepository(pool).Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}
