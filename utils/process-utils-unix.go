//go:build unix

package utils

import (
	"os/exec"
	"syscall"
)

// ConfigureDetachedProcAttr starts cmd in its own process group so a
// terminal Ctrl-C does not reach it before our shutdown hooks run.
func ConfigureDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// TerminateProcessGroup sends SIGTERM to the group started by cmd.
func TerminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}
