// Package executor runs shell commands for the managed app, either on this
// host or on the configured SSH host.
//
// Buffered calls (Run) return the full stdout once the command exits.
// Streaming calls (Start) return a Process as soon as the command is running;
// from then on every failure is reported through the Process, never through
// Start.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
)

// Executor runs commands in one place (local or remote).
type Executor interface {
	Run(ctx context.Context, cmd string) (string, error)
	Start(ctx context.Context, cmd string) (Process, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Process is a command started in streaming mode.
type Process interface {
	Stdout() io.Reader
	// Stderr returns nil if stderr is merged into Stdout.
	Stderr() io.Reader
	// Wait blocks until the command exits. A non-zero exit is not an error.
	Wait() (int, error)
	// Kill stops the command. Safe to call more than once and after exit.
	Kill()
}

// ExitError is returned by Run when the command exits non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("command exited with status %d", e.Code)
	}
	return fmt.Sprintf("command exited with status %d: %s", e.Code, msg)
}

// ErrNoSSHCredentials means neither SSH_PASSWORD nor SSH_PRIVATE_KEY_PATH is set.
var ErrNoSSHCredentials = errors.New("no SSH password or private key configured")

// New returns the executor for the configured manage mode.
func New(cfg config.Settings) Executor {
	if cfg.Remote() {
		return NewRemote(SSHConfigFrom(cfg))
	}
	return NewLocal()
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
