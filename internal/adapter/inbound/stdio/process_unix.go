//go:build !windows

package stdio

import (
	"os/exec"
	"syscall"
)

// terminateGracefully sends SIGTERM, the first step of the
// SIGTERM-then-SIGKILL teardown spec.md §4.6 shutdown requires.
func terminateGracefully(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}
