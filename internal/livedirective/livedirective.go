// Package livedirective extracts the comment-embedded live directives
// (#dev-cmd-live=, #dev-run=, #dev-copy=, #dev-env=, #escape=) that the
// directive-aware recipe parser merges back into the instruction stream.
package livedirective

import (
	"regexp"
	"strings"

	"github.com/ctrstack/livepush/internal/sourcemap"
)

// Kind identifies which live directive a comment matched.
type Kind string

const (
	KindCmdLive Kind = "dev-cmd-live"
	KindRun     Kind = "dev-run"
	KindCopy    Kind = "dev-copy"
	KindEnv     Kind = "dev-env"
	KindEscape  Kind = "escape"
	KindMarker  Kind = "livecmd-marker"
)

// Directive is a single parsed live directive, still carrying its 0-based
// source line so the recipe parser can interleave it with ordinary
// instructions by line order.
type Directive struct {
	Kind Kind
	Args string
	Line int
	Raw  string
}

var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindCmdLive, regexp.MustCompile(`(?i)^#\s*dev-cmd-live\s*=\s*(.*)$`)},
	{KindRun, regexp.MustCompile(`(?i)^#\s*dev-run\s*=\s*(.*)$`)},
	{KindCopy, regexp.MustCompile(`(?i)^#\s*dev-copy\s*=\s*(.*)$`)},
	{KindEnv, regexp.MustCompile(`(?i)^#\s*dev-env\s*=\s*(.*)$`)},
	{KindEscape, regexp.MustCompile("(?i)^#\\s*escape\\s*=\\s*(.*)$")},
	{KindMarker, regexp.MustCompile(`(?i)^#\s*livecmd-marker\s*$`)},
}

// Parse extracts every live directive comment from the given SourceMap, in
// line order. Comments that don't match any known directive are ignored;
// malformed-but-prefixed comments (e.g. "# dev-run=" with no body) still
// parse, with an empty Args.
func Parse(sm *sourcemap.SourceMap) []Directive {
	var out []Directive
	for _, comment := range sm.Comments() {
		text := strings.TrimSpace(comment.Text)
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			d := Directive{Kind: p.kind, Line: comment.Line, Raw: comment.Text}
			if len(m) > 1 {
				d.Args = strings.TrimSpace(m[1])
			}
			out = append(out, d)
			break
		}
	}
	return out
}
