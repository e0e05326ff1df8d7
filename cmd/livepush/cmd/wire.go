package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ctrstack/livepush/internal/config"
	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/event"
	"github.com/ctrstack/livepush/internal/executor"
	"github.com/ctrstack/livepush/internal/liverecipe"
	"github.com/ctrstack/livepush/internal/livepusherr"
	"github.com/ctrstack/livepush/internal/orchestrator"
	"github.com/ctrstack/livepush/internal/recipe"
	"github.com/ctrstack/livepush/internal/stage"
	"github.com/ctrstack/livepush/internal/stagecopy"
)

// helperEntrypoint is the long-running idle command given to intermediate
// stage helper containers, per 6's startContainerFromImage contract.
var helperEntrypoint = []string{"sleep", "infinity"}

// sharedFlags are the flags common to every command that wires an
// orchestrator.
var sharedFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "dockerfile",
		Aliases: []string{"f"},
		Usage:   "Path to the Dockerfile",
		Value:   "Dockerfile",
	},
	&cli.StringFlag{
		Name:  "context",
		Usage: "Build context root directory",
		Value: ".",
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: auto-discover)",
	},
	&cli.StringFlag{
		Name:  "container",
		Usage: "Terminal container identifier (the user's running container)",
		Sources: cli.EnvVars("LIVEPUSH_RUNTIME_TERMINAL_CONTAINER_ID"),
	},
	&cli.StringSliceFlag{
		Name:  "stage-image",
		Usage: "Intermediate stage image, one per non-terminal stage in stage order (repeatable)",
		Sources: cli.EnvVars("LIVEPUSH_RUNTIME_STAGE_IMAGES"),
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "Rewrite the recipe into its live-directive development variant before building",
	},
	&cli.BoolFlag{
		Name:  "skip-container-restart",
		Usage: "Suppress the terminal-container restart",
		Sources: cli.EnvVars("LIVEPUSH_RESTART_SKIP_CONTAINER_RESTART"),
	},
}

// pipeline is the fully wired set of collaborators a run needs.
type pipeline struct {
	model *stage.Model
	rt    container.Runtime
	o     *orchestrator.Orchestrator
}

// overridesFromFlags builds the koanf-shaped CLI override map from explicitly
// set flags, so unset flags fall through to env vars and config file values.
func overridesFromFlags(cmd *cli.Command) map[string]any {
	overrides := map[string]any{}
	runtimeOverrides := map[string]any{}

	if cmd.IsSet("container") {
		runtimeOverrides["terminal-container-id"] = cmd.String("container")
	}
	if cmd.IsSet("stage-image") {
		runtimeOverrides["stage-images"] = cmd.StringSlice("stage-image")
	}
	if len(runtimeOverrides) > 0 {
		overrides["runtime"] = runtimeOverrides
	}
	if cmd.IsSet("skip-container-restart") {
		overrides["restart"] = map[string]any{"skip-container-restart": cmd.Bool("skip-container-restart")}
	}
	return overrides
}

// wire loads configuration, parses and builds the recipe, starts helper
// containers for every non-terminal stage, and adopts the terminal
// container, returning a ready-to-use orchestrator. This is the
// constructor/init step 7 describes: parse and validation errors surface
// here, to the caller.
func wire(ctx context.Context, cmd *cli.Command) (*pipeline, error) {
	contextRoot := cmd.String("context")

	var cfg *config.Config
	var err error
	if configPath := cmd.String("config"); configPath != "" {
		cfg, err = config.LoadFromFile(configPath, overridesFromFlags(cmd))
	} else {
		cfg, err = config.LoadWithOverrides(contextRoot, overridesFromFlags(cmd))
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	source, err := os.ReadFile(cmd.String("dockerfile"))
	if err != nil {
		return nil, fmt.Errorf("read dockerfile: %w", err)
	}

	var entries []recipe.Entry
	if cmd.Bool("dev") {
		result, genErr := liverecipe.Generate(source)
		if genErr != nil {
			return nil, genErr
		}
		entries = result.Entries
	} else {
		entries, err = recipe.Parse(bytes.NewReader(source))
		if err != nil {
			return nil, err
		}
	}

	model, err := stage.Build(entries)
	if err != nil {
		return nil, err
	}

	wantHelpers := len(model.Stages) - 1
	if len(cfg.Runtime.StageImages) != wantHelpers {
		return nil, &livepusherr.InvalidArgumentError{
			Message: fmt.Sprintf("got %d stage images, want %d (stages-1)", len(cfg.Runtime.StageImages), wantHelpers),
		}
	}
	if cfg.Runtime.TerminalContainerID == "" {
		return nil, &livepusherr.InvalidArgumentError{Message: "terminal container identifier is required"}
	}

	rt, err := container.NewDockerRuntime()
	if err != nil {
		return nil, fmt.Errorf("connect to container runtime: %w", err)
	}

	sc := stagecopy.NewEngine(rt)
	sink := event.Func(printEvent)

	containers := make(map[int]string, len(model.Stages))
	executors := make(map[int]*executor.Executor, len(model.Stages))
	terminalIdx := len(model.Stages) - 1

	for i := range model.Stages {
		var containerID string
		if i == terminalIdx {
			containerID = cfg.Runtime.TerminalContainerID
		} else {
			containerID, err = rt.StartContainerFromImage(ctx, cfg.Runtime.StageImages[i], helperEntrypoint, nil)
			if err != nil {
				return nil, fmt.Errorf("start helper container for stage %d: %w", i, err)
			}
		}
		containers[i] = containerID

		ex := executor.New(rt, sc, containerID, i, contextRoot, sink)
		if i != terminalIdx {
			ex.SetSkipRestart(true)
		}
		executors[i] = ex
	}

	o := orchestrator.New(model, rt, executors, containers, sink)
	o.SetBuildArguments(cfg.BuildArgs)
	o.SetSkipContainerRestart(cfg.Restart.SkipContainerRestart)

	return &pipeline{model: model, rt: rt, o: o}, nil
}

// printEvent renders the typed event stream to stdout/stderr.
func printEvent(e event.Event) {
	switch e.Kind {
	case event.CommandExecute:
		fmt.Printf("[stage %d] $ %s\n", e.StageIndex, e.Command)
	case event.CommandOutput:
		w := os.Stdout
		if e.Output.IsStderr {
			w = os.Stderr
		}
		fmt.Fprint(w, string(e.Output.Data))
	case event.CommandReturn:
		fmt.Printf("[stage %d] exit %d\n", e.StageIndex, e.ReturnCode)
	case event.ContainerRestart:
		fmt.Printf("[stage %d] restarted %s\n", e.StageIndex, e.ContainerID)
	case event.Cancel:
		fmt.Println("cancelled")
	}
}
