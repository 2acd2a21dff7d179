/**
 * @description
 * This is the main entry point for the assistant service.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/transfa/assistant-service/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, cli.ErrBlocked) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
