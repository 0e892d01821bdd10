package state

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"
)

// versionRegex finds the first dotted number in version output such as
// "app version 1.4.2 (abc123)".
var versionRegex = regexp.MustCompile(`v?(\d+(?:\.\d+)+)`)

// ExecReader reads the version by running the installed executable.
type ExecReader struct {
	Path    string
	Args    []string // defaults to ["version"]
	Timeout time.Duration
}

// InstalledVersion implements Reader. A missing executable means not
// installed.
func (r *ExecReader) InstalledVersion(ctx context.Context) (string, error) {
	if _, err := os.Stat(r.Path); os.IsNotExist(err) {
		return "", ErrNotInstalled
	}

	args := r.Args
	if len(args) == 0 {
		args = []string{"version"}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, r.Path, args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", r.Path, err)
	}

	return parseVersionOutput(output)
}

func parseVersionOutput(output []byte) (string, error) {
	m := versionRegex.FindSubmatch(output)
	if len(m) < 2 {
		return "", fmt.Errorf("no version in output %q", output)
	}
	return string(m[1]), nil
}
