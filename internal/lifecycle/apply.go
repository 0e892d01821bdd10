package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/update"
)

// ApplyRequest is the instruction a relaunched artifact receives.
type ApplyRequest struct {
	// Artifact is the downloaded file, normally the running executable
	Artifact string
	// Target is the installed executable to overwrite
	Target string
	// Launch starts the updated target afterwards
	Launch bool
	// Version is recorded in the apply result
	Version string
}

// Relaunch starts the downloaded artifact in apply mode for target
// (phase 1). On success the lifecycle stays in Relaunching and the caller
// should exit so the artifact can overwrite it.
func (l *Lifecycle) Relaunch(ctx context.Context, artifact, target string) Outcome {
	if err := l.m.to(Relaunching); err != nil {
		return failed(err)
	}

	l.clearResult()

	args := []string{"apply-update", "--target", target, "--launch"}
	if l.version != "" {
		args = append(args, "--release", l.version)
	}
	args = append(args, l.cfg.RelaunchArgs...)
	pid, err := l.deps.Launcher.Launch(ctx, artifact, args...)
	if err != nil {
		if terr := l.m.to(Idle); terr != nil {
			log.Warn(terr)
		}
		return failed(update.NewError(update.KindApplyFailed, "relaunch", err))
	}

	log.Infof("handed over to %s (pid %d)", artifact, pid)
	return Outcome{Kind: OutcomeRelaunched, Artifact: artifact}
}

// ApplyArchive extracts a downloaded archive into the target directory in
// place, then deletes the archive. The configured clean paths are removed
// first.
func (l *Lifecycle) ApplyArchive(ctx context.Context, artifact string, sink update.ProgressSink) Outcome {
	if err := l.m.to(Applying); err != nil {
		return failed(err)
	}

	l.clearResult()

	sink.Report("Installing update")
	err := l.deps.Clean(l.cfg.TargetDir, l.cfg.CleanPaths)
	if err == nil {
		err = l.deps.Extract(ctx, artifact, l.cfg.TargetDir, sink)
	}

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if terr := l.m.to(Idle); terr != nil {
			return failed(terr)
		}
		return Outcome{Kind: OutcomeCancelled, Artifact: artifact}
	}

	return l.finish(err, ApplyRequest{Artifact: artifact, Target: l.cfg.TargetDir, Version: l.version}, sink, true)
}

// Apply overwrites req.Target with req.Artifact (phase 2). It waits a
// bounded time for other processes running the target to exit and then
// attempts the replace regardless; a still-locked target fails the apply.
// There is no automatic retry. Every replace failure is reported as
// ApplyFailed, and a panic is recorded as a failed apply.
func (l *Lifecycle) Apply(ctx context.Context, req ApplyRequest, sink update.ProgressSink) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("apply panicked: %v\n%s", r, debug.Stack())
			l.m.reset()
			err := update.NewError(update.KindApplyFailed, "apply", fmt.Errorf("unexpected failure: %v", r))
			l.writeResult(ApplyResult{
				Error:      err.Error(),
				Version:    req.Version,
				Artifact:   req.Artifact,
				Target:     req.Target,
				ExecutedAt: l.deps.Now(),
			})
			sink.Report(fmt.Sprintf("Update failed: %v", err))
			out = Outcome{Kind: OutcomeFailed, Artifact: req.Artifact, Err: err}
		}
	}()

	if err := l.m.to(Applying); err != nil {
		return failed(err)
	}

	sink.Report("Waiting for running instances to exit")
	report, err := l.deps.Processes.WaitForExit(ctx, filepath.Base(req.Target), l.cfg.WaitTimeout)
	switch {
	case err != nil && ctx.Err() != nil:
		if terr := l.m.to(Idle); terr != nil {
			return failed(terr)
		}
		return Outcome{Kind: OutcomeCancelled, Artifact: req.Artifact}
	case err != nil:
		log.Warnf("could not check for running instances: %v", err)
	case !report.Clear():
		log.Warnf("%d instance(s) of %s still running, attempting the update anyway",
			len(report.TimedOut), filepath.Base(req.Target))
	}

	sink.Report("Installing update")
	err = l.deps.Replacer.Replace(ctx, req.Artifact, req.Target)
	if err != nil && update.KindOf(err) != update.KindApplyFailed {
		err = update.NewError(update.KindApplyFailed, "apply", err)
	}

	// The relaunched target removes the artifact once this process is gone.
	cleanupSelf := !(err == nil && req.Launch)
	out = l.finish(err, req, sink, cleanupSelf)

	if out.Kind == OutcomeApplied && req.Launch {
		args := append([]string{"cleanup", "--target", req.Artifact}, l.cfg.RelaunchArgs...)
		if _, lerr := l.deps.Launcher.Launch(ctx, req.Target, args...); lerr != nil {
			log.Errorf("update applied but relaunching %s failed: %v", req.Target, lerr)
		}
	}
	return out
}

// finish records the result of an apply attempt and walks through
// Applied|ApplyFailed and CleaningUp back to Idle.
func (l *Lifecycle) finish(applyErr error, req ApplyRequest, sink update.ProgressSink, removeArtifact bool) Outcome {
	result := ApplyResult{
		Success:    applyErr == nil,
		Version:    req.Version,
		Artifact:   req.Artifact,
		Target:     req.Target,
		ExecutedAt: l.deps.Now(),
	}
	next := Applied
	if applyErr != nil {
		next = ApplyFailed
		result.Error = applyErr.Error()
		log.Errorf("update failed: %v", applyErr)
		sink.Report(fmt.Sprintf("Update failed: %v", applyErr))
	} else {
		sink.ReportPercent("Update installed", 100)
	}
	if err := l.m.to(next); err != nil {
		return failed(err)
	}

	l.writeResult(result)

	if err := l.m.to(CleaningUp); err != nil {
		return failed(err)
	}
	if removeArtifact {
		if err := removeFile(req.Artifact); err != nil {
			log.Warnf("failed to remove artifact: %v", err)
		}
	}
	if err := l.m.to(Idle); err != nil {
		return failed(err)
	}

	if applyErr != nil {
		return Outcome{Kind: OutcomeFailed, Artifact: req.Artifact, Err: applyErr}
	}
	return Outcome{Kind: OutcomeApplied, Artifact: req.Artifact}
}

func (l *Lifecycle) writeResult(result ApplyResult) {
	if l.deps.Results == nil {
		return
	}
	if err := l.deps.Results.Write(result); err != nil {
		log.Warnf("failed to write apply result: %v", err)
	}
}

// clearResult removes the previous apply result so a watcher waits for the
// outcome of this update.
func (l *Lifecycle) clearResult() {
	if l.deps.Results == nil {
		return
	}
	if err := l.deps.Results.Cleanup(); err != nil {
		log.Warnf("failed to remove previous apply result: %v", err)
	}
}

// Cleanup waits for processes still running the artifact and deletes it.
// Failures are logged and returned for reporting; they are never fatal.
func (l *Lifecycle) Cleanup(ctx context.Context, artifact string) error {
	if err := l.m.to(CleaningUp); err != nil {
		return err
	}
	defer func() {
		if err := l.m.to(Idle); err != nil {
			log.Warn(err)
		}
	}()

	var errs *multierror.Error

	if _, err := l.deps.Processes.WaitForExit(ctx, filepath.Base(artifact), l.cfg.WaitTimeout); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("wait for %s: %w", filepath.Base(artifact), err))
	}
	if err := removeFile(artifact); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		log.Warnf("cleanup of %s incomplete: %v", artifact, err)
		return err
	}
	log.Infof("removed %s", artifact)
	return nil
}

func removeFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
