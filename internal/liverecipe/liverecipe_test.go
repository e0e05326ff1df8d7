package liverecipe

import (
	"strings"
	"testing"
)

func TestGenerate_RewritesLiveCmdAndSuppressesOriginalCmd(t *testing.T) {
	src := []byte(`FROM alpine
COPY a /a
CMD ["node", "server.js"]
# dev-cmd-live=node server.js --watch
COPY b /b
`)
	result, err := Generate(src)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(result.Text, `CMD ["node", "server.js"]`) {
		t.Fatalf("expected original CMD suppressed, got:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "CMD node server.js --watch") {
		t.Fatalf("expected rewritten live CMD, got:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "# livecmd-marker") {
		t.Fatalf("expected marker comment, got:\n%s", result.Text)
	}
	if !strings.Contains(result.Text, "COPY b /b") {
		t.Fatalf("expected trailing COPY preserved, got:\n%s", result.Text)
	}
}

func TestGenerate_DropsStagesAfterNonTerminalLiveCmd(t *testing.T) {
	src := []byte(`FROM golang AS b
RUN build
# dev-cmd-live=node server.js
FROM alpine
COPY --from=b /out /out
`)
	result, err := Generate(src)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(result.Text, "FROM alpine") {
		t.Fatalf("expected the terminal stage dropped, got:\n%s", result.Text)
	}
}

func TestGenerate_LiveRunAndCopyAndEnv(t *testing.T) {
	src := []byte(`FROM alpine
# dev-run=apk add curl
# dev-copy=debug.sh /debug.sh
# dev-env=DEBUG=1
# dev-cmd-live=./debug.sh
`)
	result, err := Generate(src)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, want := range []string{"RUN apk add curl", "COPY debug.sh /debug.sh", "ENV DEBUG=1"} {
		if !strings.Contains(result.Text, want) {
			t.Fatalf("expected %q in rewritten text, got:\n%s", want, result.Text)
		}
	}
}

func TestGenerate_NoDirectivesRoundTripsVerbatim(t *testing.T) {
	src := []byte(`FROM alpine

# build the app
COPY a /a
RUN echo hello

COPY b /b
`)
	result, err := Generate(src)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Text != string(src) {
		t.Fatalf("expected verbatim round trip, got:\n%s\nwant:\n%s", result.Text, string(src))
	}
}

func TestGenerate_IdempotentOnRewrittenOutput(t *testing.T) {
	src := []byte(`FROM alpine
COPY a /a
# dev-cmd-live=node server.js
COPY b /b
`)
	first, err := Generate(src)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := Generate([]byte(first.Text))
	if err != nil {
		t.Fatalf("Generate() on rewritten text error = %v", err)
	}
	if first.Text != second.Text {
		t.Fatalf("expected idempotent rewrite, got:\nfirst:\n%s\nsecond:\n%s", first.Text, second.Text)
	}
}
