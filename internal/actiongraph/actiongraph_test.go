package actiongraph

import (
	"testing"

	"github.com/ctrstack/livepush/internal/stage"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		file, source string
		want         bool
	}{
		{"a.ts", "a.ts", true},
		{"src/a.ts", "src/*.ts", true},
		{"src/a.ts", "src/", true},
		{"src/sub/a.ts", "src/", true},
		{"src", "src/", false}, // src itself is not a strict descendant of src
		{"anything", ".", true},
		{"b.ts", "a.ts", false},
		{"/abs/b.ts", "/abs/", true},
		{"/abs/b.ts", "/ab*", false}, // absolute sources never glob-match
	}
	for _, c := range cases {
		if got := Matches(c.file, c.source); got != c.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", c.file, c.source, got, c.want)
		}
	}
}

func TestGroupsForChangedFiles(t *testing.T) {
	groups := []*stage.ActionGroup{
		{LocalCopies: []stage.LocalCopy{{Source: "a.ts", Dest: "/a.ts"}}},
		{Commands: []string{"cmd"}},
		{LocalCopies: []stage.LocalCopy{{Source: "b.ts", Dest: "/b.ts"}}},
	}

	got := GroupsForChangedFiles(groups, []string{"b.ts"})
	if len(got) != 1 || got[0] != groups[2] {
		t.Fatalf("expected suffix starting at group 2, got %d groups", len(got))
	}

	got = GroupsForChangedFiles(groups, []string{"a.ts"})
	if len(got) != 3 {
		t.Fatalf("expected suffix of all 3 groups from index 0, got %d", len(got))
	}

	if got := GroupsForChangedFiles(groups, []string{"nope.ts"}); got != nil {
		t.Fatalf("expected nil for unmatched file, got %+v", got)
	}
}

func TestGroupsForChangedStage(t *testing.T) {
	groups := []*stage.ActionGroup{
		{Commands: []string{"cmd"}},
		{IsStageGroup: true, StageDependency: 0, StageCopies: []stage.StageCopy{{Source: "/out", Dest: "/out", SourceStage: 0}}},
		{IsStageGroup: true, StageDependency: 1},
	}

	got := GroupsForChangedStage(groups, 0)
	if len(got) != 2 || got[0] != groups[1] {
		t.Fatalf("expected suffix starting at group 1, got %d", len(got))
	}

	if got := GroupsForChangedStage(groups, 5); got != nil {
		t.Fatalf("expected nil for unrelated stage, got %+v", got)
	}
}
