// Package orchestrator implements component 4.7: it owns the per-stage
// executors and containers, turns a changed-file set into replayed action
// groups via the invalidation engine, and serializes concurrent livepush
// requests through cooperative cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/event"
	"github.com/ctrstack/livepush/internal/executor"
	"github.com/ctrstack/livepush/internal/invalidate"
	"github.com/ctrstack/livepush/internal/livepusherr"
	"github.com/ctrstack/livepush/internal/stage"
)

// pollInterval is how often a cancelling call checks whether the prior run
// has acknowledged, per 5's "polling at ~1s".
var pollInterval = time.Second

// Orchestrator owns the container map and the running/cancelRequested flags
// described in 4.7.
type Orchestrator struct {
	model      *stage.Model
	rt         container.Runtime
	executors  map[int]*executor.Executor
	containers map[int]string
	sink       event.Sink

	mu              sync.Mutex
	running         bool
	cancelRequested bool
}

func New(model *stage.Model, rt container.Runtime, executors map[int]*executor.Executor, containers map[int]string, sink event.Sink) *Orchestrator {
	if sink == nil {
		sink = event.Discard
	}
	return &Orchestrator{
		model:      model,
		rt:         rt,
		executors:  executors,
		containers: containers,
		sink:       sink,
	}
}

// SetBuildArguments propagates K=V build arguments to every stage's
// executor, read by the next exec each issues.
func (o *Orchestrator) SetBuildArguments(args map[string]string) {
	for _, ex := range o.executors {
		ex.SetBuildArguments(args)
	}
}

// SetSkipContainerRestart suppresses the restart of the terminal stage's
// container across all future PerformLivepush calls.
func (o *Orchestrator) SetSkipContainerRestart(skip bool) {
	terminal := o.terminalStage()
	if ex, ok := o.executors[terminal]; ok {
		ex.SetSkipRestart(skip)
	}
}

func (o *Orchestrator) terminalStage() int {
	for _, st := range o.model.Stages {
		if st.IsLast {
			return st.Index
		}
	}
	return len(o.model.Stages) - 1
}

// LivepushNeeded is the cheap predicate callers use to skip a round trip
// when no stage is affected by the given changes.
func (o *Orchestrator) LivepushNeeded(added, deleted []string) bool {
	return invalidate.Needed(o.model, merge(added, deleted))
}

// PerformLivepush runs the 4.7 algorithm: compute tasks, cancel and wait for
// any in-flight run, then replay each affected stage in ascending order.
func (o *Orchestrator) PerformLivepush(ctx context.Context, added, deleted []string) error {
	tasks := invalidate.Invalidate(o.model, merge(added, deleted))
	if len(tasks) == 0 {
		return nil
	}

	if err := o.preemptPriorRun(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancelRequested = false
		o.mu.Unlock()
	}()

	indices := make([]int, 0, len(tasks))
	for idx := range tasks {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		if o.isCancelled() {
			break
		}
		if _, ok := o.containers[idx]; !ok {
			return &livepusherr.ContainerNotRunningError{ContainerID: fmt.Sprintf("for stage %d", idx)}
		}
		ex, ok := o.executors[idx]
		if !ok {
			return &livepusherr.InternalInconsistencyError{Message: fmt.Sprintf("no executor registered for stage %d", idx)}
		}
		if err := ex.ExecuteActionGroups(ctx, tasks[idx], added, deleted, o.containers, o.isCancelled); err != nil {
			return err
		}
	}
	return nil
}

// preemptPriorRun implements 4.7 step 2: if a livepush is already running,
// request cancellation and block until it has acknowledged.
func (o *Orchestrator) preemptPriorRun(ctx context.Context) error {
	o.mu.Lock()
	alreadyRunning := o.running
	if alreadyRunning {
		o.cancelRequested = true
	}
	o.mu.Unlock()

	if !alreadyRunning {
		return nil
	}

	slog.Debug("cancelling in-flight livepush run")
	o.sink.Emit(event.Event{Kind: event.Cancel})

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		o.mu.Lock()
		stillRunning := o.running
		o.mu.Unlock()
		if !stillRunning {
			slog.Debug("prior livepush run acknowledged cancellation")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) isCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelRequested
}

// CleanupIntermediateContainers removes every helper container (every stage
// but the terminal one). After this, a PerformLivepush call needing one of
// them fails with ContainerNotRunningError.
func (o *Orchestrator) CleanupIntermediateContainers(ctx context.Context) error {
	terminal := o.terminalStage()
	for idx, id := range o.containers {
		if idx == terminal {
			continue
		}
		if err := o.rt.Remove(ctx, id, true); err != nil {
			return err
		}
		slog.Debug("removed helper container", "stage", idx, "container", id)
		delete(o.containers, idx)
	}
	return nil
}

func merge(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
