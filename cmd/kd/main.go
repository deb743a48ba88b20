// Command kd is the entrypoint for the orchestrator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/kdorchestrator/kd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
