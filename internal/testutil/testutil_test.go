package testutil

import (
	"context"
	"testing"

	"github.com/ctrstack/livepush/internal/container"
)

func TestParseRecipe(t *testing.T) {
	entries := ParseRecipe(t, "FROM alpine\nRUN echo hello\n")
	if len(entries) == 0 {
		t.Fatal("ParseRecipe returned no entries")
	}
}

func TestBuildModel(t *testing.T) {
	model := BuildModel(t, "FROM alpine\nCOPY a /a\n")
	if len(model.Stages) != 1 {
		t.Fatalf("Stages = %d, want 1", len(model.Stages))
	}
}

func TestFakeRuntime_DefaultsToRunning(t *testing.T) {
	rt := &FakeRuntime{}
	insp, err := rt.Inspect(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !insp.Running {
		t.Error("expected default Running = true")
	}
}

func TestFakeRuntime_RunningOverride(t *testing.T) {
	rt := &FakeRuntime{Running: map[string]bool{"c1": false}}
	insp, err := rt.Inspect(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if insp.Running {
		t.Error("expected overridden Running = false")
	}
}

func TestFakeRuntime_KillStartRemoveTracked(t *testing.T) {
	rt := &FakeRuntime{}
	ctx := context.Background()

	if err := rt.Kill(ctx, "c1", "SIGKILL"); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if err := rt.Start(ctx, "c1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := rt.Remove(ctx, "c1", false); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if got := rt.Killed(); len(got) != 1 || got[0] != "c1" {
		t.Errorf("Killed() = %v, want [c1]", got)
	}
	if got := rt.Removed(); len(got) != 1 || got[0] != "c1" {
		t.Errorf("Removed() = %v, want [c1]", got)
	}
}

func TestFakeRuntime_ExecStreamEmitsChunk(t *testing.T) {
	rt := &FakeRuntime{
		ExecResults: map[string]container.ExecResult{
			"c1": {ExitCode: 0, Stdout: []byte("hi")},
		},
	}

	var gotData []byte
	var gotStderr bool
	result, err := rt.ExecStream(context.Background(), "c1", []string{"echo", "hi"}, nil, func(data []byte, isStderr bool) {
		gotData = data
		gotStderr = isStderr
	})
	if err != nil {
		t.Fatalf("ExecStream() error = %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if string(gotData) != "hi" {
		t.Errorf("chunk data = %q, want %q", gotData, "hi")
	}
	if gotStderr {
		t.Error("expected isStderr = false")
	}
}
