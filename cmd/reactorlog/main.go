// Command reactorlog commits, queries and exports bioreactor telemetry.
package main

import (
	"fmt"
	"os"

	"github.com/asaldivar93/reactors-czlab/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
