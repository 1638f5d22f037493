package compiler

import (
	"fmt"
	"strings"
)

// Diagnostics is the error type returned for a failed compile: the complete
// list of problems found before the first structurally-blocking one. It is
// always request-scoped; a failed compile leaves no state behind.
type Diagnostics struct {
	Messages []string
}

func (d *Diagnostics) Error() string {
	switch len(d.Messages) {
	case 0:
		return "patch compilation failed"
	case 1:
		return "patch compilation failed: " + d.Messages[0]
	}
	return fmt.Sprintf("patch compilation failed with %d diagnostics:\n  - %s",
		len(d.Messages), strings.Join(d.Messages, "\n  - "))
}

func (d *Diagnostics) addf(format string, args ...any) {
	d.Messages = append(d.Messages, fmt.Sprintf(format, args...))
}

func (d *Diagnostics) empty() bool { return len(d.Messages) == 0 }

// asError returns d when it holds messages, nil otherwise.
func (d *Diagnostics) asError() error {
	if d.empty() {
		return nil
	}
	return d
}
