// Package lifecycle drives a self-update: check, download, then either
// relaunch the downloaded executable to apply it or extract an archive in
// place, and finally clean up.
//
// Executable updates run in two phases. Phase 1 (Run or Relaunch) starts the
// downloaded artifact with "apply-update --target <current>" and returns so
// the caller can exit. Phase 2 (Apply) runs inside that artifact: it waits
// for the old process to go away, replaces the target and optionally
// relaunches it with "cleanup --target <artifact>".
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/archive"
	"github.com/adamancini/swapup/internal/process"
	"github.com/adamancini/swapup/internal/state"
	"github.com/adamancini/swapup/internal/types"
	"github.com/adamancini/swapup/internal/update"
)

// DefaultFeedRetryInterval is the first pause between feed retries
const DefaultFeedRetryInterval = 500 * time.Millisecond

// Config is the static description of what to update and how.
type Config struct {
	Query             update.Query
	FeedRetries       int // extra attempts when the feed is unavailable
	FeedRetryInterval time.Duration

	Style  types.UpdateStyle
	Policy types.UpgradePolicy

	// Executable is the installed binary (executable style)
	Executable string
	// DownloadDir receives archive downloads (archive style)
	DownloadDir string
	// TargetDir is where archives are extracted
	TargetDir  string
	CleanPaths []string

	// WaitTimeout bounds the wait for each conflicting process
	WaitTimeout time.Duration
	// RelaunchArgs are appended to the apply-update and cleanup invocations,
	// e.g. the config file in use.
	RelaunchArgs []string
}

// Waiter waits for other processes to exit
type Waiter interface {
	WaitForExit(ctx context.Context, name string, timeout time.Duration) (process.WaitReport, error)
}

// Replacer overwrites target with source
type Replacer interface {
	Replace(ctx context.Context, source, target string) error
}

// Verifier checks a downloaded artifact
type Verifier interface {
	Verify(ctx context.Context, c *update.Candidate, path string) error
}

// Extractor unpacks an archive into a directory
type Extractor func(ctx context.Context, archivePath, targetDir string, sink update.ProgressSink) error

// Cleaner removes paths below a directory
type Cleaner func(targetDir string, paths []string) error

// Deps are the collaborators of a Lifecycle. Nil fields get the real
// implementations.
type Deps struct {
	Resolver  update.Checker
	Fetcher   update.Fetcher
	Verifier  Verifier
	Installed state.Reader
	Processes Waiter
	Launcher  process.Launcher
	Replacer  Replacer
	Extract   Extractor
	Clean     Cleaner
	Results   *ResultHandler
	Now       func() time.Time
}

// Lifecycle is one update driver. Its methods are meant to be called from a
// single flow of control; the state machine rejects out-of-order calls.
type Lifecycle struct {
	cfg  Config
	deps Deps
	m    *machine

	version string // tag of the last downloaded candidate
}

// New creates a lifecycle in the Idle state.
func New(cfg Config, deps Deps) *Lifecycle {
	if deps.Resolver == nil {
		deps.Resolver = update.NewResolver(nil)
	}
	if deps.Fetcher == nil {
		deps.Fetcher = update.NewDownloader(nil)
	}
	if deps.Installed == nil {
		deps.Installed = state.Static("")
	}
	if deps.Processes == nil {
		deps.Processes = process.NewCoordinator(nil)
	}
	if deps.Launcher == nil {
		deps.Launcher = process.ExecLauncher{}
	}
	if deps.Replacer == nil {
		deps.Replacer = update.NewBinaryReplacer()
	}
	if deps.Extract == nil {
		deps.Extract = archive.Extract
	}
	if deps.Clean == nil {
		deps.Clean = archive.CleanPaths
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = process.DefaultWaitTimeout
	}
	cfg.Style = cfg.Style.Default()
	cfg.Policy = cfg.Policy.Default()

	return &Lifecycle{
		cfg:  cfg,
		deps: deps,
		m:    newMachine(deps.Now),
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.m.current()
}

// Subscribe returns a channel of state transitions and a function that
// stops the subscription and closes the channel. Transitions that do not
// fit in the buffer are dropped.
func (l *Lifecycle) Subscribe(buffer int) (<-chan Transition, func()) {
	return l.m.subscribe(buffer)
}

// Check asks the feed for a candidate and decides whether it is offered.
// It ends in UpdateAvailable or back in Idle.
func (l *Lifecycle) Check(ctx context.Context) Outcome {
	if err := l.m.to(CheckingForUpdate); err != nil {
		return failed(err)
	}

	out := l.check(ctx)
	next := Idle
	if out.Kind == OutcomeUpdateAvailable {
		next = UpdateAvailable
	}
	if err := l.m.to(next); err != nil {
		return failed(err)
	}
	return out
}

func (l *Lifecycle) check(ctx context.Context) Outcome {
	candidate, err := l.resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled}
		}
		return failed(err)
	}
	if candidate == nil {
		log.Infof("no update candidate in %s", l.cfg.Query.FeedURL)
		return Outcome{Kind: OutcomeNoUpdate}
	}

	candidateVersion, err := candidate.Version()
	if err != nil {
		return failed(err)
	}

	out := Outcome{Kind: OutcomeUpdateAvailable, Candidate: candidate}

	installed, err := l.deps.Installed.InstalledVersion(ctx)
	switch {
	case errors.Is(err, state.ErrNotInstalled):
		log.Infof("nothing installed, offering %s", candidate.Release.TagName)
		return out
	case err != nil:
		return failed(update.NewError(update.KindIO, "read installed version", err))
	}
	out.Installed = installed

	installedVersion, err := update.ParseVersion(installed)
	if err != nil {
		return failed(err)
	}

	if !l.cfg.Policy.AlwaysOffer() && !update.IsUpgrade(candidateVersion, installedVersion) {
		log.Infof("installed %s is up to date (latest %s)", installedVersion, candidateVersion)
		out.Kind = OutcomeNoUpdate
		return out
	}

	log.Infof("update available: %s -> %s", installedVersion, candidateVersion)
	return out
}

// resolve retries only when the feed is unavailable; a malformed feed or a
// bad tag will not get better by asking again.
func (l *Lifecycle) resolve(ctx context.Context) (*update.Candidate, error) {
	if l.cfg.FeedRetries <= 0 {
		return l.deps.Resolver.Resolve(ctx, l.cfg.Query)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.cfg.FeedRetryInterval
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = DefaultFeedRetryInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(l.cfg.FeedRetries)), ctx)

	var candidate *update.Candidate
	operation := func() error {
		var err error
		candidate, err = l.deps.Resolver.Resolve(ctx, l.cfg.Query)
		if err != nil && !errors.Is(err, update.ErrFeedUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warnf("release feed unavailable, retrying in %s: %v", next, err)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return candidate, nil
}

// Download fetches the candidate's asset. It ends in Downloaded, or in Idle
// when cancelled or failed. A failed verification deletes the artifact.
func (l *Lifecycle) Download(ctx context.Context, c *update.Candidate, sink update.ProgressSink) Outcome {
	if c == nil {
		return failed(errors.New("no candidate to download"))
	}
	if err := l.m.to(Downloading); err != nil {
		return failed(err)
	}

	out := l.download(ctx, c, sink)
	next := Idle
	if out.Kind == OutcomeDownloaded {
		next = Downloaded
		l.version = c.Release.TagName
	}
	if out.Kind == OutcomeFailed {
		sink.Report(fmt.Sprintf("Download failed: %v", out.Err))
	}
	if err := l.m.to(next); err != nil {
		return failed(err)
	}
	return out
}

func (l *Lifecycle) download(ctx context.Context, c *update.Candidate, sink update.ProgressSink) Outcome {
	dest, err := l.artifactPath(c)
	if err != nil {
		return failed(err)
	}

	res, err := l.deps.Fetcher.Download(ctx, update.Request{URL: c.Asset.DownloadURL, Destination: dest}, sink)
	if err != nil {
		return failed(err)
	}
	if res.Cancelled {
		return Outcome{Kind: OutcomeCancelled, Candidate: c}
	}

	if l.deps.Verifier != nil {
		sink.Report("Verifying download")
		if err := l.deps.Verifier.Verify(ctx, c, res.Path); err != nil {
			if rerr := os.Remove(res.Path); rerr != nil && !os.IsNotExist(rerr) {
				log.Warnf("failed to remove unverified artifact %s: %v", res.Path, rerr)
			}
			if ctx.Err() != nil {
				return Outcome{Kind: OutcomeCancelled, Candidate: c}
			}
			return failed(err)
		}
	}

	if !l.cfg.Style.IsArchive() {
		if err := os.Chmod(res.Path, 0755); err != nil {
			log.Warnf("failed to make %s executable: %v", res.Path, err)
		}
	}

	return Outcome{Kind: OutcomeDownloaded, Candidate: c, Artifact: res.Path}
}

// artifactPath is next to the executable for executable updates, so the
// apply step renames within one filesystem, and in DownloadDir for archives.
func (l *Lifecycle) artifactPath(c *update.Candidate) (string, error) {
	if l.cfg.Style.IsArchive() {
		if l.cfg.DownloadDir == "" {
			return "", errors.New("no download directory configured")
		}
		return filepath.Join(l.cfg.DownloadDir, filepath.Base(c.Asset.Name)), nil
	}

	if l.cfg.Executable == "" {
		return "", errors.New("no executable configured")
	}
	return update.StagedName(l.cfg.Executable), nil
}
