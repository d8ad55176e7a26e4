//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func terminate(pid int) {
	signalGroup(pid, syscall.SIGTERM)
}

func hangup(pid int) {
	signalGroup(pid, syscall.SIGHUP)
}

func kill(pid int) {
	signalGroup(pid, syscall.SIGKILL)
}

// signalGroup targets -pid so children of the leader are signalled too. If
// the group is gone or the call is refused it falls back to the single pid.
func signalGroup(pid int, sig syscall.Signal) {
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(-pid, sig); err != nil && err != syscall.ESRCH {
		_ = syscall.Kill(pid, sig)
	}
}
