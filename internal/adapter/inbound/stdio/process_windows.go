//go:build windows

package stdio

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// terminateGracefully has no SIGTERM equivalent on Windows. The closest
// analog is CTRL_BREAK_EVENT, which a process can install a handler for
// to flush and exit cleanly; it only reaches processes started in their
// own process group, which exec.Cmd does not do by default, so this is
// best-effort. Failure here is not an error: the bridge falls straight
// through to the hard kill after the same grace period either way.
func terminateGracefully(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	_ = windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(cmd.Process.Pid))
	return nil
}
