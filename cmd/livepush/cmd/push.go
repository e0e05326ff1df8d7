package cmd

import (
	"context"
	"strings"

	"github.com/urfave/cli/v3"
)

func pushCommand() *cli.Command {
	flags := append([]cli.Flag{}, sharedFlags...)
	flags = append(flags,
		&cli.StringSliceFlag{
			Name:  "added",
			Usage: "Context-relative path of an added or updated file (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "deleted",
			Usage: "Context-relative path of a deleted file (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "build-arg",
			Usage: "Build argument K=V, passed as an exec environment entry (repeatable)",
		},
	)

	return &cli.Command{
		Name:   "push",
		Usage:  "Replay the action groups affected by a changed-file set",
		Flags:  flags,
		Action: runPush,
	}
}

func runPush(ctx context.Context, cmd *cli.Command) error {
	p, err := wire(ctx, cmd)
	if err != nil {
		return err
	}

	if args := cmd.StringSlice("build-arg"); len(args) > 0 {
		buildArgs := make(map[string]string, len(args))
		for _, kv := range args {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			buildArgs[k] = v
		}
		p.o.SetBuildArguments(buildArgs)
	}

	added := cmd.StringSlice("added")
	deleted := cmd.StringSlice("deleted")

	if !p.o.LivepushNeeded(added, deleted) {
		return nil
	}
	return p.o.PerformLivepush(ctx, added, deleted)
}
