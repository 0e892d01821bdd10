package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/update"
)

// ConfirmFunc decides whether an available update is installed
type ConfirmFunc func(Outcome) bool

// Run performs a whole update: check, confirm, download, then extract in
// place (archive style) or relaunch the artifact (executable style).
//
// Run never panics; unexpected faults come back as OutcomeFailed and the
// lifecycle returns to Idle. A nil confirm accepts every update.
func (l *Lifecycle) Run(ctx context.Context, sink update.ProgressSink, confirm ConfirmFunc) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("update panicked: %v\n%s", r, debug.Stack())
			l.m.reset()
			out = failed(fmt.Errorf("unexpected failure: %v", r))
			sink.Report(fmt.Sprintf("Update failed: %v", out.Err))
		}
	}()

	sink.Report("Checking for updates")
	checked := l.Check(ctx)
	if checked.Kind != OutcomeUpdateAvailable {
		if checked.Kind == OutcomeFailed {
			sink.Report(fmt.Sprintf("Update check failed: %v", checked.Err))
		}
		return checked
	}

	if confirm != nil && !confirm(checked) {
		log.Infof("update to %s declined", checked.CandidateTag())
		if err := l.m.to(Idle); err != nil {
			return failed(err)
		}
		return checked
	}

	downloaded := l.Download(ctx, checked.Candidate, sink)
	downloaded.Installed = checked.Installed
	if downloaded.Kind != OutcomeDownloaded {
		return downloaded
	}

	var applied Outcome
	if l.cfg.Style.IsArchive() {
		applied = l.ApplyArchive(ctx, downloaded.Artifact, sink)
	} else {
		applied = l.Relaunch(ctx, downloaded.Artifact, l.cfg.Executable)
	}
	applied.Candidate = checked.Candidate
	applied.Installed = checked.Installed
	return applied
}
