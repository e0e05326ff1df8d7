// Package executor implements the per-container executor (component 4.6):
// given a stage's ordered action groups and the set of changed files, it
// resolves local copy/delete operations, uploads and deletes files,
// delegates stage-copy sub-steps, runs commands, and restarts the container
// when a group crossing the live-cmd boundary applied.
package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ctrstack/livepush/internal/actiongraph"
	"github.com/ctrstack/livepush/internal/buildcontext"
	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/event"
	"github.com/ctrstack/livepush/internal/livepusherr"
	"github.com/ctrstack/livepush/internal/shellquote"
	"github.com/ctrstack/livepush/internal/stage"
	"github.com/ctrstack/livepush/internal/stagecopy"
)

// Executor runs the action groups belonging to a single stage's container.
type Executor struct {
	rt          container.Runtime
	stageCopy   *stagecopy.Engine
	containerID string
	stageIndex  int
	buildCtx    *buildcontext.BuildContext
	sink        event.Sink

	mu       sync.Mutex
	dirCache map[string]bool

	buildArgs   []string // K=V, set via SetBuildArguments
	skipRestart bool
}

// SetSkipRestart implements the skipContainerRestart option (6): when true,
// ExecuteActionGroups never kills/starts this executor's container.
func (e *Executor) SetSkipRestart(skip bool) {
	e.skipRestart = skip
}

// New builds an executor for one stage's container. contextRoot is the
// build context root on the host, used to resolve 4.6.1's host-side file
// checks.
func New(rt container.Runtime, sc *stagecopy.Engine, containerID string, stageIndex int, contextRoot string, sink event.Sink) *Executor {
	if sink == nil {
		sink = event.Discard
	}
	bc, err := buildcontext.New(contextRoot)
	if err != nil {
		bc = &buildcontext.BuildContext{Root: contextRoot}
	}
	return &Executor{
		rt:          rt,
		buildCtx:    bc,
		stageCopy:   sc,
		containerID: containerID,
		stageIndex:  stageIndex,
		sink:        sink,
		dirCache:    make(map[string]bool),
	}
}

// SetBuildArguments replaces the K=V environment entries passed to every
// subsequent exec. Callers must not mutate the map concurrently with a run.
func (e *Executor) SetBuildArguments(args map[string]string) {
	entries := make([]string, 0, len(args))
	for k, v := range args {
		entries = append(entries, k+"="+v)
	}
	e.mu.Lock()
	e.buildArgs = entries
	e.mu.Unlock()
}

// CheckRunning inspects the remote container and reports whether its
// runtime state is running.
func (e *Executor) CheckRunning(ctx context.Context) (bool, error) {
	insp, err := e.rt.Inspect(ctx, e.containerID)
	if err != nil {
		return false, err
	}
	return insp.Running, nil
}

// PathIsDirectory runs a memoized remote `test -d`.
func (e *Executor) PathIsDirectory(ctx context.Context, p string) (bool, error) {
	e.mu.Lock()
	if v, ok := e.dirCache[p]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	result, err := e.rt.Exec(ctx, e.containerID, []string{"test", "-d", p})
	if err != nil {
		return false, err
	}
	isDir := result.ExitCode == 0

	e.mu.Lock()
	e.dirCache[p] = isDir
	e.mu.Unlock()
	return isDir, nil
}

// CancelFunc reports whether the caller has asked the run to stop.
type CancelFunc func() bool

// ExecuteActionGroups runs groups in order against this stage's container,
// per 4.6. stageContainers maps a stage index to its container ID, used to
// resolve StageCopy sources.
func (e *Executor) ExecuteActionGroups(ctx context.Context, groups []*stage.ActionGroup, added, deleted []string, stageContainers map[int]string, cancelled CancelFunc) error {
	running, err := e.CheckRunning(ctx)
	if err != nil {
		return err
	}
	if !running {
		return &livepusherr.ContainerNotRunningError{ContainerID: e.containerID}
	}

	ranAny := false
	needsRestart := false

	for _, g := range groups {
		if g.IsStageGroup {
			srcContainer, ok := stageContainers[g.StageDependency]
			if !ok {
				return &livepusherr.InternalInconsistencyError{
					Message: fmt.Sprintf("no container recorded for stage %d", g.StageDependency),
				}
			}
			for _, cp := range g.StageCopies {
				if err := e.stageCopy.Copy(ctx, srcContainer, e.containerID, cp); err != nil {
					return err
				}
			}
		} else {
			if err := e.applyLocalGroup(ctx, g, added, deleted); err != nil {
				return err
			}
		}

		ranAny = true
		if g.Restart {
			needsRestart = true
		}

		halted, wasCancelled, err := e.runCommands(ctx, g.Commands, cancelled)
		if err != nil {
			return err
		}
		if wasCancelled {
			return nil
		}
		if halted {
			break
		}
		if cancelled != nil && cancelled() {
			return nil
		}
	}

	if ranAny && needsRestart && !e.skipRestart {
		if err := e.restart(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) applyLocalGroup(ctx context.Context, g *stage.ActionGroup, added, deleted []string) error {
	toAdd, toDelete, err := e.resolveLocalOps(ctx, g, added, deleted)
	if err != nil {
		return err
	}

	if len(toAdd) > 0 {
		archive, err := buildAddArchive(toAdd)
		if err != nil {
			return err
		}
		if err := e.rt.PutArchive(ctx, e.containerID, "/", archive); err != nil {
			return err
		}
	}

	for _, p := range toDelete {
		if _, err := e.rt.Exec(ctx, e.containerID, []string{"rm", "-f", p}); err != nil {
			return err
		}
	}
	return nil
}

// resolveLocalOps implements 4.6.1: compute the in-container destination
// for every changed file matched by the group's copies, split into files to
// upload (dest path -> host source path) and paths to delete.
func (e *Executor) resolveLocalOps(ctx context.Context, g *stage.ActionGroup, added, deleted []string) (toAdd map[string]string, toDelete []string, err error) {
	toAdd = make(map[string]string)
	hasIgnoreFile := e.buildCtx.HasIgnoreFile()

	for _, f := range added {
		ignored, ierr := e.ignored(hasIgnoreFile, f)
		if ierr != nil {
			return nil, nil, ierr
		}
		if ignored {
			continue
		}
		for _, c := range g.LocalCopies {
			if !actiongraph.Matches(f, c.Source) {
				continue
			}
			dest, derr := e.resolveDestination(ctx, c, f)
			if derr != nil {
				return nil, nil, derr
			}
			toAdd[dest] = filepath.Join(e.buildCtx.Root, filepath.FromSlash(f))
		}
	}
	for _, f := range deleted {
		ignored, ierr := e.ignored(hasIgnoreFile, f)
		if ierr != nil {
			return nil, nil, ierr
		}
		if ignored {
			continue
		}
		for _, c := range g.LocalCopies {
			if !actiongraph.Matches(f, c.Source) {
				continue
			}
			dest, derr := e.resolveDestination(ctx, c, f)
			if derr != nil {
				return nil, nil, derr
			}
			toDelete = append(toDelete, dest)
		}
	}
	return toAdd, toDelete, nil
}

// ignored reports whether f is excluded by .dockerignore/.containerignore,
// skipping the check entirely when the context root carries no ignore file.
func (e *Executor) ignored(hasIgnoreFile bool, f string) (bool, error) {
	if !hasIgnoreFile {
		return false, nil
	}
	ignored, err := e.buildCtx.IsIgnored(f)
	if err != nil {
		return false, &livepusherr.RuntimeError{Message: "checking .dockerignore for " + f, Err: err}
	}
	return ignored, nil
}

func (e *Executor) resolveDestination(ctx context.Context, c stage.LocalCopy, f string) (string, error) {
	destIsDir := strings.HasSuffix(c.Dest, "/")
	if !destIsDir {
		var err error
		destIsDir, err = e.PathIsDirectory(ctx, c.Dest)
		if err != nil {
			return "", err
		}
	}
	if !destIsDir {
		return c.Dest, nil
	}

	if e.buildCtx.IsFile(c.Source) && c.Source != f {
		return path.Join(c.Dest, relativePath(c.Source, f)), nil
	}
	return path.Join(c.Dest, f), nil
}

// relativePath returns f's path relative to source, POSIX style, when
// source is a directory prefix of f; otherwise it returns f's base name.
func relativePath(source, f string) string {
	dir := strings.TrimSuffix(source, "/")
	rel := strings.TrimPrefix(f, dir+"/")
	if rel == f {
		return path.Base(f)
	}
	return rel
}

func buildAddArchive(toAdd map[string]string) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for dest, hostPath := range toAdd {
		data, err := os.ReadFile(hostPath)
		if err != nil {
			return nil, &livepusherr.RuntimeError{Message: "reading host file " + hostPath, Err: err}
		}
		info, err := os.Stat(hostPath)
		if err != nil {
			return nil, &livepusherr.RuntimeError{Message: "statting host file " + hostPath, Err: err}
		}
		hdr := &tar.Header{
			Name:    strings.TrimPrefix(dest, "/"),
			Mode:    int64(info.Mode().Perm()),
			Size:    int64(len(data)),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, &livepusherr.RuntimeError{Message: "writing archive header for " + dest, Err: err}
		}
		if _, err := tw.Write(data); err != nil {
			return nil, &livepusherr.RuntimeError{Message: "writing archive body for " + dest, Err: err}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, &livepusherr.RuntimeError{Message: "closing add archive", Err: err}
	}
	return &buf, nil
}

// runCommands executes cmds in order (4.6.2), emitting the event triad for
// each. halted reports that a non-zero exit stopped the remaining commands
// in this group, which the caller treats as a normal (non-error) stop.
// wasCancelled reports that the stop was instead a cooperative cancellation
// mid-command: per 4.6 step 2, a cancelled run must return cleanly without
// restarting the container, so the caller must not fold this into the
// non-zero-exit restart path.
func (e *Executor) runCommands(ctx context.Context, cmds []string, cancelled CancelFunc) (halted, wasCancelled bool, err error) {
	e.mu.Lock()
	env := append([]string(nil), e.buildArgs...)
	e.mu.Unlock()

	for _, cmdLine := range cmds {
		if err := shellquote.Validate(cmdLine); err != nil {
			return false, false, err
		}

		e.sink.Emit(event.Event{Kind: event.CommandExecute, StageIndex: e.stageIndex, Command: cmdLine})

		argv := shellquote.WrapLine(cmdLine)
		result, err := e.rt.ExecStream(ctx, e.containerID, argv, env, func(data []byte, isStderr bool) {
			e.sink.Emit(event.Event{
				Kind:       event.CommandOutput,
				StageIndex: e.stageIndex,
				Output:     event.Output{Data: data, IsStderr: isStderr},
			})
		})
		if err != nil {
			return false, false, err
		}

		e.sink.Emit(event.Event{Kind: event.CommandReturn, StageIndex: e.stageIndex, Command: cmdLine, ReturnCode: result.ExitCode})

		if cancelled != nil && cancelled() {
			return true, true, nil
		}
		if result.ExitCode != 0 {
			return true, false, nil
		}
	}
	return false, false, nil
}

func (e *Executor) restart(ctx context.Context) error {
	if err := e.rt.Kill(ctx, e.containerID, "SIGKILL"); err != nil {
		return err
	}
	if err := e.rt.Start(ctx, e.containerID); err != nil {
		return err
	}
	slog.Debug("restarted container", "container", e.containerID, "stage", e.stageIndex)
	e.sink.Emit(event.Event{Kind: event.ContainerRestart, ContainerID: e.containerID, StageIndex: e.stageIndex})
	return nil
}
