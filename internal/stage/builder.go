package stage

import (
	"path"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/instructions"

	"github.com/ctrstack/livepush/internal/livepusherr"
	"github.com/ctrstack/livepush/internal/recipe"
)

// Builder walks a parsed recipe entry list and produces a Model.
type Builder struct {
	stagesByName map[string]int

	stages  []*Stage
	current *Stage

	lastWorkdir     string
	lastStepWasCopy bool
	ungrouped       []string

	liveCmdSeen   bool
	markerCrossed bool
}

// NewBuilder creates a stage builder.
func NewBuilder() *Builder {
	return &Builder{stagesByName: make(map[string]int)}
}

// Build constructs the stage model from a parsed recipe.
func Build(entries []recipe.Entry) (*Model, error) {
	return NewBuilder().Build(entries)
}

// Build runs the stage-building walk described in component 4.2.
func (b *Builder) Build(entries []recipe.Entry) (*Model, error) {
	for _, e := range entries {
		var err error
		switch e.Kind {
		case recipe.KindFrom:
			err = b.onFrom(e)
		case recipe.KindWorkdir:
			err = b.onWorkdir(e)
		case recipe.KindRun:
			b.onRun(e)
		case recipe.KindCopy:
			err = b.onCopy(e)
		case recipe.KindLiveCmd:
			err = b.onLiveCmd()
		case recipe.KindLiveCmdMarker:
			b.onMarker()
		default:
			// LIVERUN, LIVECOPY, LIVEENV, ESCAPE, OTHER, CMD: no effect on
			// the production action graph.
		}
		if err != nil {
			return nil, err
		}
	}

	b.finalizeCurrent()

	if len(b.stages) > 0 {
		b.stages[len(b.stages)-1].IsLast = true
	}

	return &Model{Stages: b.stages, Graph: newGraph(b.stages)}, nil
}

func (b *Builder) onFrom(e recipe.Entry) error {
	b.finalizeCurrent()

	idx := e.StageIndex
	st := &Stage{Index: idx, DependentOnStages: make(map[int]struct{})}
	if e.Stage.Name != "" {
		st.Name = e.Stage.Name
		b.stagesByName[normalizeRef(e.Stage.Name)] = idx
	}

	b.stages = append(b.stages, st)
	b.current = st
	b.lastWorkdir = "/"
	b.lastStepWasCopy = false
	b.ungrouped = nil

	return nil
}

func (b *Builder) onWorkdir(e recipe.Entry) error {
	wd, ok := e.Command.(*instructions.WorkdirCommand)
	if !ok || b.current == nil {
		return nil
	}

	b.flushCommands()

	dir := wd.Path
	if !strings.HasPrefix(dir, "/") {
		dir = posixJoin(b.lastWorkdir, dir)
	}
	b.lastWorkdir = dir

	b.pushGroup(&ActionGroup{Workdir: dir, Restart: !b.markerCrossed})
	b.lastStepWasCopy = false
	return nil
}

func (b *Builder) onRun(e recipe.Entry) {
	run, ok := e.Command.(*instructions.RunCommand)
	if !ok {
		return
	}
	b.ungrouped = append(b.ungrouped, strings.Join(run.CmdLine, " "))
	b.lastStepWasCopy = false
}

func (b *Builder) onCopy(e recipe.Entry) error {
	c, ok := e.Command.(*instructions.CopyCommand)
	if !ok || b.current == nil {
		return nil
	}

	isStageCopy := c.From != ""
	var sourceStage int
	if isStageCopy {
		idx, err := b.resolveStageRef(c.From)
		if err != nil {
			return err
		}
		sourceStage = idx
		b.current.DependentOnStages[sourceStage] = struct{}{}
	}

	dest := c.DestPath
	if !strings.HasPrefix(dest, "/") {
		dest = posixJoin(b.lastWorkdir, dest)
	}

	tail := b.tailGroup()
	coalesce := b.lastStepWasCopy && tail != nil && tail.IsStageGroup == isStageCopy &&
		(!isStageCopy || tail.StageDependency == sourceStage)

	if !coalesce {
		b.flushCommands()
		tail = &ActionGroup{Workdir: b.lastWorkdir, IsStageGroup: isStageCopy, StageDependency: sourceStage, Restart: !b.markerCrossed}
		b.pushGroup(tail)
	}

	for _, src := range c.SourcePaths {
		normSrc := posixNormalizeSource(src)
		if isStageCopy {
			tail.StageCopies = append(tail.StageCopies, StageCopy{Source: normSrc, Dest: dest, SourceStage: sourceStage})
		} else {
			tail.LocalCopies = append(tail.LocalCopies, LocalCopy{Source: normSrc, Dest: dest})
		}
	}

	b.lastStepWasCopy = true
	return nil
}

func (b *Builder) onLiveCmd() error {
	if b.liveCmdSeen {
		return &livepusherr.RecipeParseError{Message: "duplicate #dev-cmd-live directive: only one is allowed per recipe"}
	}
	b.liveCmdSeen = true
	return nil
}

func (b *Builder) onMarker() {
	b.markerCrossed = true
	// Force the next COPY to start a fresh group so groups on either side
	// of the restart boundary never share a Restart value.
	b.lastStepWasCopy = false
}

// resolveStageRef resolves a COPY --from value to a stage index. Per the
// data model, a reference must be either a decimal index referring to a
// strictly earlier stage, or the AS-alias of one; anything else is a parse
// error (FROM's own base-image reference is not subject to this rule, since
// it is usually an external image).
func (b *Builder) resolveStageRef(ref string) (int, error) {
	if idx, err := strconv.Atoi(ref); err == nil {
		if b.current != nil && idx >= 0 && idx < b.current.Index {
			return idx, nil
		}
		return 0, &livepusherr.RecipeParseError{Message: "COPY --from=" + ref + " does not reference an earlier stage"}
	}

	if idx, ok := b.stagesByName[normalizeRef(ref)]; ok && (b.current == nil || idx < b.current.Index) {
		return idx, nil
	}
	return 0, &livepusherr.RecipeParseError{Message: "COPY --from=" + ref + " does not resolve to a known stage alias or index"}
}

func (b *Builder) tailGroup() *ActionGroup {
	if b.current == nil || len(b.current.ActionGroups) == 0 {
		return nil
	}
	return b.current.ActionGroups[len(b.current.ActionGroups)-1]
}

func (b *Builder) pushGroup(g *ActionGroup) {
	b.current.ActionGroups = append(b.current.ActionGroups, g)
}

// flushCommands appends any pending RUN commands to the tail group,
// creating one first (with the group's own Restart value) if none exists.
func (b *Builder) flushCommands() {
	if len(b.ungrouped) == 0 {
		return
	}
	tail := b.tailGroup()
	if tail == nil {
		tail = &ActionGroup{Workdir: b.lastWorkdir, Restart: !b.markerCrossed}
		b.pushGroup(tail)
	}
	tail.Commands = append(tail.Commands, b.ungrouped...)
	b.ungrouped = nil
}

// finalizeCurrent flushes pending commands and elides empty groups for the
// stage under construction.
func (b *Builder) finalizeCurrent() {
	if b.current == nil {
		return
	}
	b.flushCommands()

	kept := b.current.ActionGroups[:0]
	for _, g := range b.current.ActionGroups {
		if !g.Empty() {
			kept = append(kept, g)
		}
	}
	b.current.ActionGroups = kept
}

func normalizeRef(name string) string {
	return strings.ToLower(name)
}

// posixJoin joins a workdir and a relative path using forward-slash
// semantics regardless of host OS; recipe-side paths are always POSIX.
func posixJoin(workdir, rel string) string {
	return path.Join(workdir, rel)
}

// posixNormalizeSource cleans a COPY source path while preserving a
// trailing slash, which is semantically meaningful (directory-prefix
// matching in the action-graph compiler).
func posixNormalizeSource(src string) string {
	if src == "." {
		return src
	}
	hadTrailingSlash := strings.HasSuffix(src, "/") && src != "/"
	cleaned := path.Clean(src)
	if hadTrailingSlash && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}
