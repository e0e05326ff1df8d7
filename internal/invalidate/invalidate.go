// Package invalidate implements the invalidation engine (component 4.4): it
// maps a changed-file set to the ordered {stage -> action groups} map the
// orchestrator replays, propagating invalidation across stage-dependency
// edges while preserving the longest-affected-suffix rule.
package invalidate

import (
	"github.com/ctrstack/livepush/internal/actiongraph"
	"github.com/ctrstack/livepush/internal/stage"
)

// Invalidate runs the two-phase algorithm described in 4.4.
//
// Phase one seeds the frontier from stages whose own local groups match the
// changed files. Phase two repeatedly walks the dependency graph, replacing
// a dependent stage's recorded suffix whenever a longer one is found via a
// newly-invalidated upstream stage, until the frontier is empty. Because
// stage dependencies always point to strictly lower indices, the process
// terminates in at most len(stages) expansions.
func Invalidate(model *stage.Model, changedFiles []string) map[int][]*stage.ActionGroup {
	result := make(map[int][]*stage.ActionGroup)
	byIndex := make(map[int]*stage.Stage, len(model.Stages))
	for _, st := range model.Stages {
		byIndex[st.Index] = st
	}

	var frontier []int
	for _, st := range model.Stages {
		if groups := actiongraph.GroupsForChangedFiles(st.ActionGroups, changedFiles); groups != nil {
			result[st.Index] = groups
			frontier = append(frontier, st.Index)
		}
	}

	for len(frontier) > 0 {
		var next []int
		for _, src := range frontier {
			for _, dependent := range model.Graph.Dependents(src) {
				target := byIndex[dependent]
				groups := actiongraph.GroupsForChangedStage(target.ActionGroups, src)
				if groups == nil {
					continue
				}
				if len(groups) > len(result[dependent]) {
					result[dependent] = groups
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	return result
}

// Needed reports whether Invalidate would produce any work for the given
// changed files — a cheap predicate for Orchestrator.LivepushNeeded.
func Needed(model *stage.Model, changedFiles []string) bool {
	return len(Invalidate(model, changedFiles)) > 0
}
