// Command livepush keeps a running container in sync with a developer's
// source tree by replaying only the Dockerfile steps affected by a set of
// changed files.
package main

import (
	"fmt"
	"os"

	"github.com/ctrstack/livepush/cmd/livepush/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
