// Package process finds other running copies of a program and waits for
// them to exit, and starts detached processes.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultWaitTimeout is how long to wait for each process
	DefaultWaitTimeout = 2 * time.Second
	// DefaultPollInterval is the pause between liveness checks
	DefaultPollInterval = 100 * time.Millisecond
)

var errStillRunning = errors.New("process still running")

// Info identifies a running process
type Info struct {
	PID  int32
	Name string
}

// Lister enumerates processes
type Lister interface {
	Processes(ctx context.Context) ([]Info, error)
	IsRunning(ctx context.Context, pid int32) (bool, error)
}

// WaitReport tells which processes exited and which outlived the timeout
type WaitReport struct {
	Exited   []Info
	TimedOut []Info
}

// Clear reports whether no matching process is still running
func (r WaitReport) Clear() bool {
	return len(r.TimedOut) == 0
}

// Coordinator waits for conflicting processes. It never kills anything.
type Coordinator struct {
	lister   Lister
	self     int32
	interval time.Duration
}

// NewCoordinator creates a coordinator. A nil lister uses the system
// process table.
func NewCoordinator(lister Lister) *Coordinator {
	if lister == nil {
		lister = SystemLister{}
	}
	return &Coordinator{
		lister:   lister,
		self:     int32(os.Getpid()),
		interval: DefaultPollInterval,
	}
}

// WithPollInterval overrides DefaultPollInterval
func (c *Coordinator) WithPollInterval(d time.Duration) *Coordinator {
	if d > 0 {
		c.interval = d
	}
	return c
}

// WaitForExit waits up to timeoutPerProcess for each running process called
// name, other than the caller, to exit. Outliving the timeout is reported in
// the WaitReport and is not an error; callers go on and let the OS decide
// whether the file is still locked.
func (c *Coordinator) WaitForExit(ctx context.Context, name string, timeoutPerProcess time.Duration) (WaitReport, error) {
	var report WaitReport

	matches, err := c.Find(ctx, name)
	if err != nil {
		return report, err
	}
	if len(matches) == 0 {
		log.Debugf("no other %s processes running", name)
		return report, nil
	}

	if timeoutPerProcess <= 0 {
		timeoutPerProcess = DefaultWaitTimeout
	}

	for _, p := range matches {
		log.Infof("waiting up to %s for %s (pid %d) to exit", timeoutPerProcess, p.Name, p.PID)

		err := c.waitOne(ctx, p.PID, timeoutPerProcess)
		switch {
		case err == nil:
			report.Exited = append(report.Exited, p)
		case errors.Is(err, errStillRunning):
			log.Warnf("%s (pid %d) still running after %s", p.Name, p.PID, timeoutPerProcess)
			report.TimedOut = append(report.TimedOut, p)
		default:
			return report, err
		}
	}
	return report, nil
}

// Find lists running processes called name, excluding the caller.
// Names compare without a trailing ".exe", case-insensitively on windows.
func (c *Coordinator) Find(ctx context.Context, name string) ([]Info, error) {
	procs, err := c.lister.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	want := normalizeName(name)
	var matches []Info
	for _, p := range procs {
		if p.PID == c.self {
			continue
		}
		if sameName(normalizeName(p.Name), want) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (c *Coordinator) waitOne(ctx context.Context, pid int32, timeout time.Duration) error {
	retries := uint64(timeout / c.interval)
	if retries == 0 {
		retries = 1
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.interval), retries), ctx)
	operation := func() error {
		running, err := c.lister.IsRunning(ctx, pid)
		if err != nil {
			// A process that vanished between listing and polling is gone.
			log.Debugf("checking pid %d: %v", pid, err)
			return nil
		}
		if running {
			return errStillRunning
		}
		return nil
	}
	return backoff.Retry(operation, b)
}

func normalizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if strings.HasSuffix(strings.ToLower(base), ".exe") {
		base = base[:len(base)-4]
	}
	return base
}

func sameName(a, b string) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
