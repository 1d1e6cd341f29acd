//go:build windows

package utils

import (
	"os/exec"
)

// ConfigureDetachedProcAttr does nothing on Windows; there are no
// process groups to detach from.
func ConfigureDetachedProcAttr(cmd *exec.Cmd) {}

// TerminateProcessGroup kills the single process started by cmd.
func TerminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
