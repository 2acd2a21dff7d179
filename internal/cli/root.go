/**
 * @description
 * Command-line entry points for the assistant service.
 *
 * @notes
 * - Every command that writes logs while serving MCP must log to stderr;
 *   stdout carries the protocol.
 */
package cli

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the assistant-service command tree.
func NewRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "assistant-service",
		Short:         "Conversational banking assistant for Phoenix Digital Bank",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (defaults to ./.env when present)")

	root.AddCommand(
		newServeCommand(),
		newMCPCommand(),
		newMigrateCommand(),
		newCheckCommand(),
	)
	return root
}

// loadEnvFile preloads environment variables. Variables already set in the
// process environment win.
func loadEnvFile(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
