//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// setDetachedProcAttr runs the process in a new session so it survives the
// parent exiting.
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
