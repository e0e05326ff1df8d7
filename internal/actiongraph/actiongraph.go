// Package actiongraph implements the action-graph compiler queries
// (component 4.3): given a stage's ordered action groups, find the suffix
// of groups invalidated by a changed-file set or by an upstream stage
// change.
package actiongraph

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ctrstack/livepush/internal/stage"
)

// Matches reports whether changed file f is covered by a COPY source
// pattern s, per the matching rule in 4.3: a minimatch-style glob match, or
// s naming a directory that is a strict ancestor of f. "." matches any
// relative path; a source ending in "/" acts as a directory prefix;
// absolute sources match only by prefix (they can never be a context-root
// glob).
func Matches(f, s string) bool {
	if s == "." {
		return true
	}

	prefix := strings.TrimSuffix(s, "/")
	if isDirPrefix(f, prefix) {
		return true
	}

	if strings.HasPrefix(s, "/") {
		return false
	}

	ok, _ := doublestar.Match(s, f)
	return ok
}

func isDirPrefix(f, dir string) bool {
	if dir == "" {
		return false
	}
	return strings.HasPrefix(f, dir+"/")
}

// GroupsForChangedFiles walks a stage's groups in order and returns the
// suffix starting at the first local group with a copy source matching any
// of the given files. Stage (non-local) groups are skipped when searching
// for the seed match, but are included in the returned suffix like every
// other group at or after it. Returns nil if nothing matches.
func GroupsForChangedFiles(groups []*stage.ActionGroup, files []string) []*stage.ActionGroup {
	for i, g := range groups {
		if g.IsStageGroup {
			continue
		}
		for _, c := range g.LocalCopies {
			for _, f := range files {
				if Matches(f, c.Source) {
					return groups[i:]
				}
			}
		}
	}
	return nil
}

// GroupsForChangedStage walks a stage's groups in order and returns the
// suffix starting at the first stage-group whose StageDependency equals
// sourceIdx. Returns nil if the stage has no such dependency.
func GroupsForChangedStage(groups []*stage.ActionGroup, sourceIdx int) []*stage.ActionGroup {
	for i, g := range groups {
		if g.IsStageGroup && g.StageDependency == sourceIdx {
			return groups[i:]
		}
	}
	return nil
}
