package dockerfile

import (
	"os"
	"strings"
	"testing"
)

func TestParse_BasicParsing(t *testing.T) {
	content := "FROM alpine:3.18\nCOPY a.txt /a.txt\nRUN echo hi\n"

	result, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if result.TotalLines != 3 {
		t.Errorf("TotalLines = %d, want 3", result.TotalLines)
	}
	if result.AST == nil {
		t.Fatal("AST is nil")
	}
	if string(result.Source) != content {
		t.Errorf("Source mismatch")
	}
}

func TestParse_CountsBlankAndCommentLines(t *testing.T) {
	content := "FROM alpine\n\n# a comment\nRUN true\n"

	result, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.BlankLines != 1 {
		t.Errorf("BlankLines = %d, want 1", result.BlankLines)
	}
	if result.CommentLines != 1 {
		t.Errorf("CommentLines = %d, want 1", result.CommentLines)
	}
}

func TestParse_InvalidSyntax(t *testing.T) {
	_, err := Parse(strings.NewReader("this is not a dockerfile instruction \\"))
	if err == nil {
		t.Fatal("expected parse error for unterminated line continuation")
	}
}

func TestCountLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := dir + "/Dockerfile"
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := CountLines(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("CountLines = %d, want 3", n)
	}
}
