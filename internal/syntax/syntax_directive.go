package syntax

import (
	"fmt"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/ctrstack/livepush/internal/livepusherr"
)

// knownFrontends lists well-known syntax directive image repositories.
var knownFrontends = []string{
	"docker/dockerfile",
	"docker.io/docker/dockerfile",
}

// checkSyntaxDirective detects typos in `# syntax=` parser directives.
func checkSyntaxDirective(source []byte) error {
	syntax, _, loc, ok := parser.DetectSyntax(source)
	if !ok || syntax == "" {
		return nil
	}

	if strings.ContainsAny(syntax, " \t") {
		return &livepusherr.RecipeParseError{
			Line:    directiveLine(loc),
			Message: fmt.Sprintf("syntax directive %q contains whitespace", syntax),
		}
	}

	// Split off the tag (e.g. "docker/dockerfile:1.7" -> repo "docker/dockerfile", tag ":1.7").
	repo, tag, _ := strings.Cut(syntax, ":")

	suggestion := closestMatch(repo, knownFrontends, 3)
	if suggestion == "" || suggestion == repo {
		return nil
	}

	suggested := suggestion
	if tag != "" {
		suggested += ":" + tag
	}
	return &livepusherr.RecipeParseError{
		Line:    directiveLine(loc),
		Message: fmt.Sprintf("syntax directive %q appears misspelled (did you mean %q?)", syntax, suggested),
	}
}

// directiveLine extracts the 0-based line number from a parser.Range slice.
func directiveLine(loc []parser.Range) int {
	if len(loc) > 0 {
		return loc[0].Start.Line - 1
	}
	return 0
}
