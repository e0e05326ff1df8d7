// Package testutil provides test helpers shared across livepush's packages:
// recipe/stage fixture construction and a fake container.Runtime double.
package testutil

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/recipe"
	"github.com/ctrstack/livepush/internal/stage"
)

// ParseRecipe parses Dockerfile content into recipe entries, failing the
// test on a parse error.
func ParseRecipe(tb testing.TB, content string) []recipe.Entry {
	tb.Helper()

	entries, err := recipe.Parse(strings.NewReader(content))
	if err != nil {
		tb.Fatalf("recipe.Parse() error = %v", err)
	}
	return entries
}

// BuildModel parses Dockerfile content and builds its stage model, failing
// the test on either a parse or a build error.
func BuildModel(tb testing.TB, content string) *stage.Model {
	tb.Helper()

	model, err := stage.Build(ParseRecipe(tb, content))
	if err != nil {
		tb.Fatalf("stage.Build() error = %v", err)
	}
	return model
}

// FakeRuntime is an in-memory container.Runtime double. Every method
// records its call and returns a canned result, configurable per
// containerID via the exported maps. Zero value is ready to use.
type FakeRuntime struct {
	mu sync.Mutex

	// Running reports the inspected state for a containerID; defaults to
	// true for any containerID not present.
	Running map[string]bool

	// ExecResults maps a containerID to the result returned by every
	// Exec/ExecStream call against it; defaults to a zero exit.
	ExecResults map[string]container.ExecResult

	// Archives maps a containerID to the bytes GetArchive returns.
	Archives map[string][]byte

	Calls []string

	started []string
	killed  []string
	removed []string
}

func (f *FakeRuntime) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

// Inspect implements container.Runtime.
func (f *FakeRuntime) Inspect(_ context.Context, containerID string) (container.Inspection, error) {
	f.record("Inspect:" + containerID)
	running := true
	if f.Running != nil {
		if v, ok := f.Running[containerID]; ok {
			running = v
		}
	}
	return container.Inspection{ID: containerID, Running: running}, nil
}

// StartContainerFromImage implements container.Runtime.
func (f *FakeRuntime) StartContainerFromImage(_ context.Context, image string, _, _ []string) (string, error) {
	f.record("StartContainerFromImage:" + image)
	f.mu.Lock()
	f.started = append(f.started, image)
	f.mu.Unlock()
	return "fake-" + image, nil
}

// PutArchive implements container.Runtime.
func (f *FakeRuntime) PutArchive(_ context.Context, containerID, dstPath string, content io.Reader) error {
	f.record("PutArchive:" + containerID + ":" + dstPath)
	_, err := io.Copy(io.Discard, content)
	return err
}

// GetArchive implements container.Runtime.
func (f *FakeRuntime) GetArchive(_ context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	f.record("GetArchive:" + containerID + ":" + srcPath)
	data := f.Archives[containerID]
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// Exec implements container.Runtime.
func (f *FakeRuntime) Exec(ctx context.Context, containerID string, cmd []string) (container.ExecResult, error) {
	return f.ExecStream(ctx, containerID, cmd, nil, nil)
}

// ExecStream implements container.Runtime.
func (f *FakeRuntime) ExecStream(_ context.Context, containerID string, cmd, _ []string, onChunk func([]byte, bool)) (container.ExecResult, error) {
	f.record("Exec:" + containerID + ":" + strings.Join(cmd, " "))
	result := f.ExecResults[containerID]
	if onChunk != nil && len(result.Stdout) > 0 {
		onChunk(result.Stdout, false)
	}
	return result, nil
}

// Kill implements container.Runtime.
func (f *FakeRuntime) Kill(_ context.Context, containerID, _ string) error {
	f.record("Kill:" + containerID)
	f.mu.Lock()
	f.killed = append(f.killed, containerID)
	f.mu.Unlock()
	return nil
}

// Start implements container.Runtime.
func (f *FakeRuntime) Start(_ context.Context, containerID string) error {
	f.record("Start:" + containerID)
	return nil
}

// Remove implements container.Runtime.
func (f *FakeRuntime) Remove(_ context.Context, containerID string, _ bool) error {
	f.record("Remove:" + containerID)
	f.mu.Lock()
	f.removed = append(f.removed, containerID)
	f.mu.Unlock()
	return nil
}

// Removed reports the containerIDs passed to Remove, in call order.
func (f *FakeRuntime) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// Killed reports the containerIDs passed to Kill, in call order.
func (f *FakeRuntime) Killed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.killed...)
}

var _ container.Runtime = (*FakeRuntime)(nil)
