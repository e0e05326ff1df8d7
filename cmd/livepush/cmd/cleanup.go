package cmd

import (
	"context"

	"github.com/urfave/cli/v3"
)

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:   "cleanup",
		Usage:  "Remove intermediate helper containers, leaving the terminal container running",
		Flags:  sharedFlags,
		Action: runCleanup,
	}
}

func runCleanup(ctx context.Context, cmd *cli.Command) error {
	p, err := wire(ctx, cmd)
	if err != nil {
		return err
	}
	return p.o.CleanupIntermediateContainers(ctx)
}
