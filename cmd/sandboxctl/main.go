// Command sandboxctl is the command-line client for sandboxcored,
// grounded on the teacher's cmd/cli/main.go entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/memstack/sandboxcore/cmd/sandboxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
