package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/event"
	"github.com/ctrstack/livepush/internal/stage"
	"github.com/ctrstack/livepush/internal/stagecopy"
)

type fakeRuntime struct {
	running    bool
	dirs       map[string]bool
	exitCodes  map[string]int
	putEntries []string
	killed     bool
	started    bool
	execCmds   []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{running: true, dirs: make(map[string]bool), exitCodes: make(map[string]int)}
}

func (f *fakeRuntime) Inspect(ctx context.Context, containerID string) (container.Inspection, error) {
	return container.Inspection{ID: containerID, Running: f.running}, nil
}

func (f *fakeRuntime) StartContainerFromImage(ctx context.Context, image string, cmd, env []string) (string, error) {
	return "c", nil
}

func (f *fakeRuntime) PutArchive(ctx context.Context, containerID, dstPath string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		f.putEntries = append(f.putEntries, hdr.Name)
	}
	return nil
}

func (f *fakeRuntime) GetArchive(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeRuntime) Exec(ctx context.Context, containerID string, cmd []string) (container.ExecResult, error) {
	if cmd[0] == "test" {
		if f.dirs[cmd[2]] {
			return container.ExecResult{ExitCode: 0}, nil
		}
		return container.ExecResult{ExitCode: 1}, nil
	}
	return container.ExecResult{ExitCode: 0}, nil
}

func (f *fakeRuntime) ExecStream(ctx context.Context, containerID string, cmd, env []string, onChunk func([]byte, bool)) (container.ExecResult, error) {
	script := cmd[len(cmd)-1]
	f.execCmds = append(f.execCmds, script)
	if onChunk != nil {
		onChunk([]byte("out\n"), false)
	}
	return container.ExecResult{ExitCode: f.exitCodes[script]}, nil
}

func (f *fakeRuntime) Kill(ctx context.Context, containerID, signal string) error {
	f.killed = true
	return nil
}

func (f *fakeRuntime) Start(ctx context.Context, containerID string) error {
	f.started = true
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, containerID string, force bool) error { return nil }

func newTestExecutor(t *testing.T, rt *fakeRuntime, sink event.Sink) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(rt, stagecopy.NewEngine(rt), "container-0", 0, dir, sink), dir
}

func TestExecuteActionGroups_LocalCopyAndCommand(t *testing.T) {
	rt := newFakeRuntime()
	rt.exitCodes["node -e 1"] = 0
	e, _ := newTestExecutor(t, rt, nil)

	groups := []*stage.ActionGroup{
		{
			LocalCopies: []stage.LocalCopy{{Source: ".", Dest: "/app/"}},
			Commands:    []string{"node -e 1"},
			Restart:     true,
		},
	}

	var events []event.Event
	e.sink = event.Func(func(ev event.Event) { events = append(events, ev) })

	if err := e.ExecuteActionGroups(context.Background(), groups, []string{"app.js"}, nil, nil, nil); err != nil {
		t.Fatalf("ExecuteActionGroups() error = %v", err)
	}
	if len(rt.putEntries) != 1 || rt.putEntries[0] != "app/app.js" {
		t.Fatalf("unexpected put entries: %+v", rt.putEntries)
	}
	if !rt.killed || !rt.started {
		t.Fatal("expected restart after a Restart=true group ran")
	}

	var kinds []event.Kind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	wantFirst := []event.Kind{event.CommandExecute, event.CommandOutput, event.CommandReturn}
	for i, k := range wantFirst {
		if kinds[i] != k {
			t.Fatalf("event %d = %v, want %v (all: %+v)", i, kinds[i], k, kinds)
		}
	}
	if kinds[len(kinds)-1] != event.ContainerRestart {
		t.Fatalf("expected trailing ContainerRestart event, got %+v", kinds)
	}
}

func TestExecuteActionGroups_NonZeroExitHaltsRemaining(t *testing.T) {
	rt := newFakeRuntime()
	rt.exitCodes["first"] = 1
	e, _ := newTestExecutor(t, rt, nil)

	groups := []*stage.ActionGroup{
		{Commands: []string{"first"}},
		{Commands: []string{"second"}},
	}

	if err := e.ExecuteActionGroups(context.Background(), groups, nil, nil, nil, nil); err != nil {
		t.Fatalf("ExecuteActionGroups() error = %v", err)
	}
	if len(rt.execCmds) != 1 {
		t.Fatalf("expected only the first command to run, got %+v", rt.execCmds)
	}
}

func TestExecuteActionGroups_CancelledMidCommandSkipsRestart(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, nil)

	groups := []*stage.ActionGroup{
		{Commands: []string{"first", "second"}, Restart: true},
	}

	cancelAfterFirst := func() func() bool {
		calls := 0
		return func() bool {
			calls++
			return calls >= 1
		}
	}()

	if err := e.ExecuteActionGroups(context.Background(), groups, nil, nil, nil, cancelAfterFirst); err != nil {
		t.Fatalf("ExecuteActionGroups() error = %v", err)
	}
	if len(rt.execCmds) != 1 {
		t.Fatalf("expected only the first command to run before cancellation, got %+v", rt.execCmds)
	}
	if rt.killed || rt.started {
		t.Fatal("cancelled run must not restart the container")
	}
}

func TestExecuteActionGroups_IgnoredFileIsSkipped(t *testing.T) {
	rt := newFakeRuntime()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".dockerignore"), []byte("app.js\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := New(rt, stagecopy.NewEngine(rt), "container-0", 0, dir, nil)

	groups := []*stage.ActionGroup{
		{LocalCopies: []stage.LocalCopy{{Source: ".", Dest: "/app/"}}},
	}

	if err := e.ExecuteActionGroups(context.Background(), groups, []string{"app.js"}, nil, nil, nil); err != nil {
		t.Fatalf("ExecuteActionGroups() error = %v", err)
	}
	if len(rt.putEntries) != 0 {
		t.Fatalf("expected no files uploaded for an ignored path, got %+v", rt.putEntries)
	}
}

func TestExecuteActionGroups_NotRunningIsError(t *testing.T) {
	rt := newFakeRuntime()
	rt.running = false
	e, _ := newTestExecutor(t, rt, nil)

	err := e.ExecuteActionGroups(context.Background(), nil, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected ContainerNotRunningError")
	}
}

func TestExecuteActionGroups_StageCopyMissingContainerIsError(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestExecutor(t, rt, nil)

	groups := []*stage.ActionGroup{
		{IsStageGroup: true, StageDependency: 5, StageCopies: []stage.StageCopy{{Source: "/a", Dest: "/a", SourceStage: 5}}},
	}
	if err := e.ExecuteActionGroups(context.Background(), groups, nil, nil, map[int]string{}, nil); err == nil {
		t.Fatal("expected error for unresolved stage container")
	}
}
