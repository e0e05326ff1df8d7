// Package shellquote hands a command line to the container executor
// (4.6.2) the way it needs it: as the script argument to /bin/sh -c, with
// its syntax validated up front via mvdan.cc/sh/v3/syntax so a malformed RUN
// or #dev-cmd-live= line fails before it ever reaches the container, rather
// than as an opaque /bin/sh -c error after the fact.
package shellquote

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/ctrstack/livepush/internal/livepusherr"
)

// Validate parses line as POSIX shell source and reports a syntax error
// without executing anything. A RUN or live-cmd line is already a complete
// shell script (it may use &&, pipes, redirection), so the right check here
// is "does this parse", not quoting: a multi-word line like
// "npm i && npm build" cannot be quoted into a single argument without
// destroying the operators that make it a pipeline in the first place.
func Validate(line string) error {
	_, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		return &livepusherr.InvalidArgumentError{Message: "invalid shell command: " + err.Error()}
	}
	return nil
}

// WrapLine passes an already-assembled shell line (e.g. a RUN instruction's
// raw CmdLine joined form, or a #dev-cmd-live= payload) through as the
// script argument to /bin/sh -c. The line is shell source itself and must
// not be quoted as a single word.
func WrapLine(line string) []string {
	return []string{"/bin/sh", "-c", line}
}
