package process

import (
	"context"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Launcher starts a program that outlives the caller
type Launcher interface {
	Launch(ctx context.Context, path string, args ...string) (int, error)
}

// ExecLauncher starts the program in its own session (process group on
// windows) and releases it, so the caller may exit right away.
type ExecLauncher struct{}

// Launch starts path with args and returns its pid
func (ExecLauncher) Launch(_ context.Context, path string, args ...string) (int, error) {
	cmd := exec.Command(path, args...)
	log.Infof("starting process: %s", cmd.String())

	setDetachedProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", path, err)
	}

	pid := cmd.Process.Pid
	log.Infof("process started with PID %d", pid)

	// Release the process so the OS can fully detach it
	if err := cmd.Process.Release(); err != nil {
		log.Warnf("failed to release process: %v", err)
	}

	return pid, nil
}
