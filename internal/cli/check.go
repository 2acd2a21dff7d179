package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/transfa/assistant-service/internal/guard"
)

// ErrBlocked is returned by check when the message would be blocked.
var ErrBlocked = errors.New("message blocked")

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <message>",
		Short: "Run the rule-based query validator against a message offline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := guard.NewQueryValidator()
			if err != nil {
				return err
			}
			message := strings.Join(args, " ")
			verdict := validator.Validate(message)

			out := cmd.OutOrStdout()
			if verdict.Allowed {
				fmt.Fprintln(out, "allowed")
				return nil
			}
			fmt.Fprintf(out, "blocked category=%s rule=%s\n", verdict.Category, verdict.Rule)
			return ErrBlocked
		},
	}
}
