// Package syntax runs fail-fast AST-level checks over a parsed Dockerfile
// before the recipe parser builds its entry list, turning a misspelled
// instruction or syntax directive into a recipe parse error with a
// suggestion instead of BuildKit's raw unknown-keyword message.
package syntax

import (
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Check runs all syntax checks against a parsed AST and its raw source,
// returning the first issue found or nil if the recipe passes every check.
func Check(ast *parser.Result, source []byte) error {
	if err := checkUnknownInstructions(ast); err != nil {
		return err
	}
	return checkSyntaxDirective(source)
}

// closestMatch returns the closest string from candidates using Levenshtein
// distance, or "" if no candidate is within maxDist.
func closestMatch(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := levenshteinDistance(input, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return best
	}
	return ""
}

// levenshteinDistance computes the Levenshtein edit distance between two
// strings. A simple O(mn) implementation, sufficient for short keywords.
func levenshteinDistance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
