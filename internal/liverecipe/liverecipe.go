// Package liverecipe implements the live-recipe rewriter (component 4.8):
// it turns a parsed recipe into the development variant the orchestrator
// actually runs, splicing in the dev-only directives and dropping whatever
// follows a live command declared in a non-terminal stage.
package liverecipe

import (
	"bytes"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/ctrstack/livepush/internal/recipe"
)

// Result is the outcome of a rewrite: the generated text plus the entries
// obtained by re-parsing it, so the internal model always reflects the dev
// recipe rather than the one the user wrote.
type Result struct {
	Text    string
	Entries []recipe.Entry
}

// Generate rewrites source per 4.8 and re-parses the result. Calling
// Generate again on Result.Text returns the same text unchanged.
func Generate(source []byte) (*Result, error) {
	entries, err := recipe.Parse(bytes.NewReader(source))
	if err != nil {
		return nil, err
	}

	text := Rewrite(source, entries)

	reparsed, err := recipe.Parse(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Entries: reparsed}, nil
}

// Rewrite applies the 4.8 transformation to already-parsed entries against
// their source text, without re-parsing the output.
func Rewrite(source []byte, entries []recipe.Entry) string {
	lines := strings.Split(string(source), "\n")

	liveCmdSeen := false
	liveCmdStage := -1
	totalStages := -1
	currentStage := -1
	for _, e := range entries {
		if e.Kind == recipe.KindFrom {
			currentStage = e.StageIndex
			if currentStage > totalStages {
				totalStages = currentStage
			}
		}
		if e.Kind == recipe.KindLiveCmd {
			liveCmdSeen = true
			liveCmdStage = currentStage
		}
	}

	dropStagesAfter := -1
	if liveCmdSeen && liveCmdStage != totalStages {
		dropStagesAfter = liveCmdStage
	}

	// cursor tracks the next source line (0-based) not yet emitted, so that
	// blank lines and ordinary comments between entries are carried through
	// verbatim instead of silently dropped: a recipe with no directives at
	// all must come back out byte-for-byte (8).
	var out []string
	cursor := 0
	currentStage = -1
	justEmittedLiveCmd := false
	for _, e := range entries {
		if e.Kind == recipe.KindFrom {
			currentStage = e.StageIndex
			if dropStagesAfter >= 0 && currentStage > dropStagesAfter {
				break
			}
		}

		start, end := spanOf(e)
		if start > cursor {
			out = append(out, lines[cursor:start]...)
		}
		if end+1 > cursor {
			cursor = end + 1
		}

		emittedLiveCmd := e.Kind == recipe.KindLiveCmd

		switch e.Kind {
		case recipe.KindLiveCmd:
			out = append(out, "# livecmd-marker")
			out = append(out, "CMD "+e.Args)
		case recipe.KindLiveCmdMarker:
			if !justEmittedLiveCmd {
				// A standalone marker from an earlier rewrite: preserve it.
				out = append(out, "# livecmd-marker")
			}
		case recipe.KindLiveRun:
			out = append(out, "RUN "+e.Args)
		case recipe.KindLiveCopy:
			out = append(out, "COPY "+e.Args)
		case recipe.KindLiveEnv:
			out = append(out, "ENV "+e.Args)
		case recipe.KindEscape:
			out = append(out, e.Raw)
		case recipe.KindCmd:
			if liveCmdSeen {
				continue
			}
			out = append(out, rawText(lines, locationOf(e)))
		default:
			out = append(out, rawText(lines, locationOf(e)))
		}
		justEmittedLiveCmd = emittedLiveCmd
	}

	// No stage was dropped: carry through whatever trailing blank lines or
	// comments follow the last entry. The final element of lines is a split
	// artifact (not a real line) when source ends in a newline, so it is
	// excluded rather than reproduced as an extra blank line.
	if dropStagesAfter == -1 {
		limit := len(lines)
		if len(source) > 0 && source[len(source)-1] == '\n' {
			limit--
		}
		if cursor < limit {
			out = append(out, lines[cursor:limit]...)
		}
	}

	return strings.Join(out, "\n") + "\n"
}

// spanOf returns the 0-based, inclusive [start, end] source line range an
// entry occupies, so Rewrite can tell which lines it already accounted for
// and which ones are free to carry through verbatim.
func spanOf(e recipe.Entry) (start, end int) {
	if e.IsLive() {
		return e.Line, e.Line
	}
	loc := locationOf(e)
	if len(loc) == 0 {
		return e.Line, e.Line
	}
	start = loc[0].Start.Line - 1
	end = loc[len(loc)-1].End.Line - 1
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	return start, end
}

func locationOf(e recipe.Entry) []parser.Range {
	if e.Kind == recipe.KindFrom {
		if e.Stage != nil {
			return e.Stage.Location
		}
		return nil
	}
	if e.Command != nil {
		return e.Command.Location()
	}
	return nil
}

// rawText slices the original source lines spanned by loc, preserving
// multi-line instructions (continuations) verbatim.
func rawText(lines []string, loc []parser.Range) string {
	if len(loc) == 0 {
		return ""
	}
	start := loc[0].Start.Line - 1
	end := loc[len(loc)-1].End.Line - 1
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if end < start {
		end = start
	}
	return strings.Join(lines[start:end+1], "\n")
}
