package orchestrator

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/event"
	"github.com/ctrstack/livepush/internal/executor"
	"github.com/ctrstack/livepush/internal/recipe"
	"github.com/ctrstack/livepush/internal/stage"
	"github.com/ctrstack/livepush/internal/stagecopy"
)

type fakeRuntime struct {
	removed []string
}

func (f *fakeRuntime) Inspect(ctx context.Context, containerID string) (container.Inspection, error) {
	return container.Inspection{ID: containerID, Running: true}, nil
}
func (f *fakeRuntime) StartContainerFromImage(ctx context.Context, image string, cmd, env []string) (string, error) {
	return "c", nil
}
func (f *fakeRuntime) PutArchive(ctx context.Context, containerID, dstPath string, content io.Reader) error {
	_, err := io.Copy(io.Discard, content)
	return err
}
func (f *fakeRuntime) GetArchive(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeRuntime) Exec(ctx context.Context, containerID string, cmd []string) (container.ExecResult, error) {
	return container.ExecResult{ExitCode: 0}, nil
}
func (f *fakeRuntime) ExecStream(ctx context.Context, containerID string, cmd, env []string, onChunk func([]byte, bool)) (container.ExecResult, error) {
	return container.ExecResult{ExitCode: 0}, nil
}
func (f *fakeRuntime) Kill(ctx context.Context, containerID, signal string) error { return nil }
func (f *fakeRuntime) Start(ctx context.Context, containerID string) error       { return nil }
func (f *fakeRuntime) Remove(ctx context.Context, containerID string, force bool) error {
	f.removed = append(f.removed, containerID)
	return nil
}

func buildModel(t *testing.T, content string) *stage.Model {
	t.Helper()
	entries, err := recipe.Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("recipe.Parse() error = %v", err)
	}
	model, err := stage.Build(entries)
	if err != nil {
		t.Fatalf("stage.Build() error = %v", err)
	}
	return model
}

func TestPerformLivepush_RunsAffectedStagesInOrder(t *testing.T) {
	model := buildModel(t, `FROM golang AS b
COPY src /src
RUN build
FROM alpine
COPY --from=b /out /out
`)
	rt := &fakeRuntime{}
	sc := stagecopy.NewEngine(rt)
	executors := map[int]*executor.Executor{
		0: executor.New(rt, sc, "container-0", 0, t.TempDir(), nil),
		1: executor.New(rt, sc, "container-1", 1, t.TempDir(), nil),
	}
	containers := map[int]string{0: "container-0", 1: "container-1"}

	o := New(model, rt, executors, containers, nil)
	if !o.LivepushNeeded([]string{"src/x.go"}, nil) {
		t.Fatal("expected LivepushNeeded to be true")
	}
	if err := o.PerformLivepush(context.Background(), []string{"src/x.go"}, nil); err != nil {
		t.Fatalf("PerformLivepush() error = %v", err)
	}
}

func TestPerformLivepush_NoMatchIsNoop(t *testing.T) {
	model := buildModel(t, "FROM alpine\nCOPY a /a\n")
	rt := &fakeRuntime{}
	sc := stagecopy.NewEngine(rt)
	executors := map[int]*executor.Executor{0: executor.New(rt, sc, "container-0", 0, t.TempDir(), nil)}
	o := New(model, rt, executors, map[int]string{0: "container-0"}, nil)

	if o.LivepushNeeded([]string{"unrelated"}, nil) {
		t.Fatal("expected LivepushNeeded to be false")
	}
	if err := o.PerformLivepush(context.Background(), []string{"unrelated"}, nil); err != nil {
		t.Fatalf("PerformLivepush() error = %v", err)
	}
}

func TestPreemptPriorRun_WaitsForRunningToClear(t *testing.T) {
	orig := pollInterval
	pollInterval = 5 * time.Millisecond
	defer func() { pollInterval = orig }()

	o := &Orchestrator{sink: event.Discard}
	o.running = true

	done := make(chan error, 1)
	go func() {
		done <- o.preemptPriorRun(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	o.mu.Lock()
	if !o.cancelRequested {
		o.mu.Unlock()
		t.Fatal("expected cancelRequested to be set while a run is in flight")
	}
	o.running = false
	o.mu.Unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("preemptPriorRun() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("preemptPriorRun did not return after running cleared")
	}
}

func TestCleanupIntermediateContainers_RemovesOnlyHelpers(t *testing.T) {
	model := buildModel(t, `FROM golang AS b
COPY src /src
FROM alpine
COPY --from=b /out /out
`)
	rt := &fakeRuntime{}
	sc := stagecopy.NewEngine(rt)
	executors := map[int]*executor.Executor{
		0: executor.New(rt, sc, "container-0", 0, t.TempDir(), nil),
		1: executor.New(rt, sc, "container-1", 1, t.TempDir(), nil),
	}
	containers := map[int]string{0: "container-0", 1: "container-1"}
	o := New(model, rt, executors, containers, nil)

	if err := o.CleanupIntermediateContainers(context.Background()); err != nil {
		t.Fatalf("CleanupIntermediateContainers() error = %v", err)
	}
	if len(rt.removed) != 1 || rt.removed[0] != "container-0" {
		t.Fatalf("expected only the helper container removed, got %+v", rt.removed)
	}
	if _, ok := containers[1]; !ok {
		t.Fatal("terminal container entry should remain")
	}
	if _, ok := containers[0]; ok {
		t.Fatal("helper container entry should be removed from the map")
	}
}
