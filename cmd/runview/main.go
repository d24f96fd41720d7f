// Command runview runs declarative test scripts behind a live HTML report.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/runview/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
