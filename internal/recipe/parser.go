package recipe

import (
	"io"
	"sort"

	"github.com/moby/buildkit/frontend/dockerfile/instructions"

	"github.com/ctrstack/livepush/internal/dockerfile"
	"github.com/ctrstack/livepush/internal/livedirective"
	"github.com/ctrstack/livepush/internal/livepusherr"
	"github.com/ctrstack/livepush/internal/sourcemap"
	"github.com/ctrstack/livepush/internal/syntax"
)

// Parse reads recipe text and produces the ordered entry list described in
// component 4.1: BuildKit's instruction stream merged with live directive
// comments, sorted by source line.
func Parse(r io.Reader) ([]Entry, error) {
	pr, err := dockerfile.Parse(r)
	if err != nil {
		return nil, &livepusherr.RecipeParseError{Message: err.Error()}
	}

	if err := syntax.Check(pr.AST, pr.Source); err != nil {
		return nil, err
	}

	stages, _, err := instructions.Parse(pr.AST.AST, nil)
	if err != nil {
		return nil, &livepusherr.RecipeParseError{Message: err.Error()}
	}

	var entries []Entry

	for stageIdx := range stages {
		stage := &stages[stageIdx]

		fromLine := 0
		if len(stage.Location) > 0 {
			fromLine = stage.Location[len(stage.Location)-1].End.Line - 1
		}
		entries = append(entries, Entry{
			Kind:       KindFrom,
			Line:       fromLine,
			Stage:      stage,
			StageIndex: stageIdx,
		})

		for _, cmd := range stage.Commands {
			entry, err := classify(cmd)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}

	sm := sourcemap.New(pr.Source)
	for _, d := range livedirective.Parse(sm) {
		entries = append(entries, directiveEntry(d))
		if d.Kind == livedirective.KindCmdLive {
			entries = append(entries, Entry{Kind: KindLiveCmdMarker, Line: d.Line, Raw: d.Raw})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Line < entries[j].Line
	})

	return entries, nil
}

// classify converts a single typed BuildKit command into a recipe Entry,
// rejecting the instructions livepush does not support.
func classify(cmd instructions.Command) (Entry, error) {
	line := 0
	if loc := cmd.Location(); len(loc) > 0 {
		line = loc[len(loc)-1].End.Line - 1
	}

	switch c := cmd.(type) {
	case *instructions.AddCommand:
		return Entry{}, &livepusherr.UnsupportedInstructionError{Instruction: "ADD", Line: line}
	case *instructions.CopyCommand:
		return Entry{Kind: KindCopy, Line: line, Command: c}, nil
	case *instructions.RunCommand:
		if !c.PrependShell {
			return Entry{}, &livepusherr.RecipeParseError{
				Line:    line,
				Message: "object-form RUN (exec-form JSON array) is not supported",
			}
		}
		return Entry{Kind: KindRun, Line: line, Command: c}, nil
	case *instructions.WorkdirCommand:
		return Entry{Kind: KindWorkdir, Line: line, Command: c}, nil
	case *instructions.CmdCommand:
		return Entry{Kind: KindCmd, Line: line, Command: c}, nil
	default:
		return Entry{Kind: KindOther, Line: line, Command: cmd}, nil
	}
}

func directiveEntry(d livedirective.Directive) Entry {
	e := Entry{Line: d.Line, Raw: d.Raw, Args: d.Args}
	switch d.Kind {
	case livedirective.KindCmdLive:
		e.Kind = KindLiveCmd
	case livedirective.KindRun:
		e.Kind = KindLiveRun
	case livedirective.KindCopy:
		e.Kind = KindLiveCopy
	case livedirective.KindEnv:
		e.Kind = KindLiveEnv
	case livedirective.KindEscape:
		e.Kind = KindEscape
	case livedirective.KindMarker:
		e.Kind = KindLiveCmdMarker
	}
	return e
}
