// Package terminal provides interactive shell sessions for the dashboard's
// terminal: a local shell on a pty, or a remote shell over SSH. Both satisfy
// Session so the socket layer drives them the same way.
package terminal

import "io"

// Kind selects the Session implementation.
type Kind int

const (
	Local Kind = iota
	Remote
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// ExitNotice is written to the client when a session of this kind ends.
func (k Kind) ExitNotice() string {
	if k == Remote {
		return "\n[SSH session closed]\n"
	}
	return "\n[Process exited]\n"
}

// Default geometry and terminal type for new sessions.
const (
	DefaultCols = 80
	DefaultRows = 24
	TermType    = "xterm-color"
)

// Resize bounds. Larger values are clamped.
const (
	MaxCols = 500
	MaxRows = 500
)

// Session is a running interactive shell.
//
// Read returns the shell's output until the shell ends. Close stops the
// shell and may be called any number of times, including after it ended on
// its own. Done is closed once the shell has ended and its resources are
// released.
type Session interface {
	io.ReadWriter
	Kind() Kind
	Resize(cols, rows uint16) error
	Size() (cols, rows uint16)
	Close() error
	Done() <-chan struct{}
}

// ClampSize bounds a requested size to [1, Max].
func ClampSize(cols, rows int) (uint16, uint16) {
	return uint16(clamp(cols, MaxCols)), uint16(clamp(rows, MaxRows))
}

func clamp(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}
