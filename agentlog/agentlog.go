// Package agentlog provides the agent's logging setup: a timestamped
// *log.Logger in the style of this codebase's cmd/ binaries, injected
// into collaborators instead of reached for as a process-wide global, per
// spec.md's design note on replacing the source's global logger.
package agentlog

import (
	"io"
	"log"
)

// New wraps w in a *log.Logger with a date/time prefix, matching the
// format the teacher codebase's cmd/ binaries configure on the standard
// logger. prefix is typically the component name, e.g. "airmonitor: ".
func New(w io.Writer, prefix string) *log.Logger {
	return log.New(w, prefix, log.Ldate|log.Ltime)
}
