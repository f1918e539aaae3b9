// Command itinerary edits a multi-day trip plan locally and keeps it in sync
// with a store of record.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmbish04/october-visit-2025/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
