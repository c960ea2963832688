package output

import (
	"fmt"
	"io"
	"os"
)

// Status is a Nagios plugin state. The numeric value is the exit code.
type Status int

const (
	OK       Status = 0
	Warning  Status = 1 // reserved; nothing in the scanner raises it
	Critical Status = 2
	Unknown  Status = 3
)

// String returns the uppercase Nagios status label.
func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode returns the Nagios-compatible exit code for this status.
func (s Status) ExitCode() int {
	return int(s)
}

// severity orders statuses for escalation: OK < WARNING < UNKNOWN < CRITICAL.
func (s Status) severity() int {
	switch s {
	case OK:
		return 0
	case Warning:
		return 1
	case Critical:
		return 3
	default:
		return 2
	}
}

// Escalate returns the more severe of s and other. A status never moves
// back down through Escalate.
func (s Status) Escalate(other Status) Status {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// exit is swapped out by tests.
var exit = os.Exit

// Terminate ends a partially written diagnostic line with a newline and
// exits the process with the status's exit code. It does not return.
func Terminate(w io.Writer, s Status) {
	fmt.Fprintln(w)
	exit(s.ExitCode())
}
