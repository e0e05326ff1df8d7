package shellquote

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{name: "simple command", line: "echo hello"},
		{name: "pipeline and list", line: "npm i && npm run build | tee /tmp/log"},
		{name: "quoted argument", line: `echo "it's fine"`},
		{name: "redirection", line: "go build -o /out ./... 2> /tmp/err"},
		{name: "unterminated quote", line: `echo "unterminated`, wantErr: true},
		{name: "dangling operator", line: "echo hello &&", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.line)
			if tt.wantErr && err == nil {
				t.Fatalf("expected an error for %q, got none", tt.line)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.line, err)
			}
		})
	}
}

func TestWrapLine(t *testing.T) {
	got := WrapLine("go build -o /out ./...")
	want := []string{"/bin/sh", "-c", "go build -o /out ./..."}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}
