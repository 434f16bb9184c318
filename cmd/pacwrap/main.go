// Command pacwrap is the reference CLI driver wiring together the
// registry, planner, transaction state machine, and progress renderer
// described throughout §4. It is a reference implementation of the
// outer surface, not pacwrap's only possible front end.
package main

import (
	"fmt"
	"os"

	"github.com/pacwrap/pacwrap/internal/errs"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}
}
