package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/transfa/assistant-service/internal/config"
	"github.com/transfa/assistant-service/internal/mcpserver"
)

func newMCPCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the backend banking tools over MCP stdio for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user-id must be a UUID: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bootLogger := newLogger(os.Stderr, slog.LevelInfo)
			cfg, err := config.LoadConfig(bootLogger)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := newLogger(os.Stderr, cfg.SlogLevel())

			c, err := buildCore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			srv, err := mcpserver.New(c.dispatcher, id, logger)
			if err != nil {
				return err
			}
			return srv.RunStdio(ctx)
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "UUID of the customer whose tools are served")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
