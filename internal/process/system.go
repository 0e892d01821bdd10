package process

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// SystemLister reads the OS process table
type SystemLister struct{}

// Processes returns all processes whose name can be read
func (SystemLister) Processes(ctx context.Context) ([]Info, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			log.Tracef("get name of pid %d: %v", p.Pid, err)
			continue
		}
		infos = append(infos, Info{PID: p.Pid, Name: name})
	}
	return infos, nil
}

// IsRunning reports whether pid still exists
func (SystemLister) IsRunning(ctx context.Context, pid int32) (bool, error) {
	return process.PidExistsWithContext(ctx, pid)
}
