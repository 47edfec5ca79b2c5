// Command timeline runs, validates and inspects task trees on a virtual clock.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/timeline/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
