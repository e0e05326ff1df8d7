package cmd

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ctrstack/livepush/internal/version"
)

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    version.BinaryName,
		Usage:   "Replay Dockerfile steps affected by a changed-file set into a running container",
		Version: version.Version(),
		Description: `livepush interprets a Dockerfile as a dependency graph and replays only
the copy/run steps affected by a set of changed files, without a full
image rebuild.

Examples:
  livepush push --container web --added src/app.go
  livepush cleanup --container web`,
		Commands: []*cli.Command{
			pushCommand(),
			cleanupCommand(),
			versionCommand(),
		},
	}
}

// Execute runs the CLI application.
func Execute() error {
	return NewApp().Run(context.Background(), os.Args)
}
