// Package stage implements the stage builder (component 4.2): it turns the
// recipe entry list produced by internal/recipe into an ordered list of
// stages, each holding an ordered list of action groups.
package stage

// LocalCopy copies a path from the build context into the container.
type LocalCopy struct {
	Source string
	Dest   string
}

// StageCopy copies a path out of an earlier stage's container.
type StageCopy struct {
	Source      string
	Dest        string
	SourceStage int
}

// ActionGroup is a bundle of same-kind copies plus the commands that follow
// them, sharing a single working directory. A group is either a LocalGroup
// (copies: LocalCopy) or a StageGroup (copies: StageCopy, with a single
// StageDependency); IsStageGroup discriminates the two.
type ActionGroup struct {
	Workdir string

	IsStageGroup    bool
	StageDependency int // valid iff IsStageGroup

	LocalCopies []LocalCopy
	StageCopies []StageCopy
	Commands    []string

	// Restart is true for groups at or before the live-cmd restart
	// boundary; false for groups created after it.
	Restart bool
}

// Empty reports whether the group has neither copies nor commands — such
// groups are elided when a stage is finalized.
func (g *ActionGroup) Empty() bool {
	return len(g.LocalCopies) == 0 && len(g.StageCopies) == 0 && len(g.Commands) == 0
}

// Stage is one FROM-delimited section of the recipe.
type Stage struct {
	Index             int
	Name              string
	DependentOnStages map[int]struct{}
	IsLast            bool
	ActionGroups      []*ActionGroup
}

// Model is the fully built set of stages plus the reverse dependency graph
// the invalidation engine (4.4) walks to cascade changes across stages.
type Model struct {
	Stages []*Stage
	Graph  *Graph
}

// Graph tracks, for each stage, which later stages depend on it via a
// COPY --from reference. Stage dependencies always point to strictly lower
// indices, so the graph is acyclic by construction.
type Graph struct {
	dependents map[int][]int
}

func newGraph(stages []*Stage) *Graph {
	g := &Graph{dependents: make(map[int][]int)}
	for _, s := range stages {
		for dep := range s.DependentOnStages {
			g.dependents[dep] = append(g.dependents[dep], s.Index)
		}
	}
	return g
}

// Dependents returns the stages that copy from stageIdx, in no particular
// order.
func (g *Graph) Dependents(stageIdx int) []int {
	return g.dependents[stageIdx]
}
