// Package procgroup starts local commands in their own process group so a
// stop can take down the whole tree (sh -c, pipes, tail -f children).
package procgroup

import (
	"os/exec"
	"time"
)

// DefaultGrace is how long Terminate waits after SIGTERM before SIGKILL.
const DefaultGrace = 3 * time.Second

// Set configures cmd to start as the leader of a new process group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill sends SIGKILL to the process group of cmd.
func Kill(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	kill(cmd.Process.Pid)
}

// Hangup sends SIGHUP to the process group of cmd, the signal a shell gets
// when its terminal goes away, and escalates to SIGKILL like Terminate.
func Hangup(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	hangup(cmd.Process.Pid)

	select {
	case <-exited:
		return
	case <-time.After(grace):
	}
	kill(cmd.Process.Pid)
}

// Terminate sends SIGTERM to the process group of cmd and escalates to
// SIGKILL if exited is not closed within grace. Errors are ignored: the
// group may already be gone.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	terminate(cmd.Process.Pid)

	select {
	case <-exited:
		return
	case <-time.After(grace):
	}
	kill(cmd.Process.Pid)
}
