// Package recipe implements the directive-aware parser described in
// component 4.1: it turns Dockerfile text into an ordered list of typed
// entries, interleaving the six live directives with the instructions
// BuildKit's own parser already understands.
package recipe

import (
	"github.com/moby/buildkit/frontend/dockerfile/instructions"
)

// Kind identifies what an Entry represents.
type Kind string

const (
	KindFrom    Kind = "FROM"
	KindCopy    Kind = "COPY"
	KindRun     Kind = "RUN"
	KindWorkdir Kind = "WORKDIR"
	KindCmd     Kind = "CMD"
	KindOther   Kind = "OTHER"

	KindLiveCmd       Kind = "LIVECMD"
	KindLiveRun       Kind = "LIVERUN"
	KindLiveCopy      Kind = "LIVECOPY"
	KindLiveEnv       Kind = "LIVEENV"
	KindLiveCmdMarker Kind = "LIVECMD_MARKER"
	KindEscape        Kind = "ESCAPE"
)

// Entry is one element of the parsed recipe: either a real Dockerfile
// instruction (Command is set) or a live directive (Command is nil).
//
// Line is 0-based and, for real instructions, is the line on which the
// instruction ends (matching multi-line RUN/COPY continuations); for
// directives it is the comment's own line.
type Entry struct {
	Kind Kind
	Line int
	Raw  string

	// Command is set for COPY/RUN/WORKDIR/CMD/OTHER entries.
	// For FROM entries it is nil; use Stage instead.
	Command instructions.Command

	// Stage is set for FROM entries: the stage this FROM begins.
	Stage *instructions.Stage

	// StageIndex is set for FROM entries: the 0-based index of Stage.
	StageIndex int

	// Args is the directive payload for LIVE*/ESCAPE entries (the text
	// after '='); unused for real instructions.
	Args string
}

// IsLive reports whether the entry originates from a live directive
// comment rather than a real Dockerfile instruction.
func (e Entry) IsLive() bool {
	switch e.Kind {
	case KindLiveCmd, KindLiveRun, KindLiveCopy, KindLiveEnv, KindLiveCmdMarker, KindEscape:
		return true
	default:
		return false
	}
}
