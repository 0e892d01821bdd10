package lifecycle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/swapup/internal/process"
	"github.com/adamancini/swapup/internal/state"
	"github.com/adamancini/swapup/internal/types"
	"github.com/adamancini/swapup/internal/update"
)

type resolveResult struct {
	candidate *update.Candidate
	err       error
}

type fakeResolver struct {
	mu      sync.Mutex
	results []resolveResult
	calls   int
	panics  bool
}

func (f *fakeResolver) Resolve(context.Context, update.Query) (*update.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("resolver exploded")
	}
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].candidate, f.results[i].err
}

type fakeFetcher struct {
	content   []byte
	cancelled bool
	err       error
	requests  []update.Request
}

func (f *fakeFetcher) Download(_ context.Context, req update.Request, sink update.ProgressSink) (update.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return update.Result{}, f.err
	}
	if f.cancelled {
		return update.Result{Cancelled: true}, nil
	}
	if err := os.MkdirAll(filepath.Dir(req.Destination), 0755); err != nil {
		return update.Result{}, err
	}
	if err := os.WriteFile(req.Destination, f.content, 0644); err != nil {
		return update.Result{}, err
	}
	sink.ReportTransfer(int64(len(f.content)), int64(len(f.content)))
	return update.Result{Path: req.Destination, Bytes: int64(len(f.content))}, nil
}

type launch struct {
	path string
	args []string
}

type fakeLauncher struct {
	launches []launch
	err      error
}

func (f *fakeLauncher) Launch(_ context.Context, path string, args ...string) (int, error) {
	f.launches = append(f.launches, launch{path: path, args: args})
	if f.err != nil {
		return 0, f.err
	}
	return 4242, nil
}

type fakeWaiter struct {
	names    []string
	timedOut bool
}

func (f *fakeWaiter) WaitForExit(_ context.Context, name string, _ time.Duration) (process.WaitReport, error) {
	f.names = append(f.names, name)
	if f.timedOut {
		return process.WaitReport{TimedOut: []process.Info{{PID: 1, Name: name}}}, nil
	}
	return process.WaitReport{}, nil
}

type fakeReplacer struct {
	err error
}

func (f *fakeReplacer) Replace(context.Context, string, string) error {
	return f.err
}

func candidate(tag string) *update.Candidate {
	asset := update.Asset{Name: "app", DownloadURL: "https://example.com/" + tag + "/app"}
	return &update.Candidate{
		Release: update.Release{TagName: tag, Assets: []update.Asset{asset}},
		Asset:   asset,
	}
}

func resolving(c *update.Candidate) *fakeResolver {
	return &fakeResolver{results: []resolveResult{{candidate: c}}}
}

func collectTransitions(l *Lifecycle) func() []Transition {
	ch, stop := l.Subscribe(64)
	return func() []Transition {
		stop()
		var out []Transition
		for t := range ch {
			out = append(out, t)
		}
		return out
	}
}

func assertTransitions(t *testing.T, got []Transition, states ...State) {
	t.Helper()
	var want []Transition
	for i := 1; i < len(states); i++ {
		want = append(want, Transition{From: states[i-1], To: states[i]})
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Transition{}, "At")); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		tag       string
		installed state.Reader
		policy    types.UpgradePolicy
		want      OutcomeKind
		wantState State
	}{
		{"newer is offered", "1.10", state.Static("1.9"), "", OutcomeUpdateAvailable, UpdateAvailable},
		{"same is not offered", "v1.9", state.Static("1.9.0"), "", OutcomeNoUpdate, Idle},
		{"older is not offered", "1.8", state.Static("1.9"), types.PolicyUpgradeOnly, OutcomeNoUpdate, Idle},
		{"always-offer reinstalls same", "1.9", state.Static("1.9"), types.PolicyAlwaysOffer, OutcomeUpdateAvailable, UpdateAvailable},
		{"nothing installed", "0.1", state.Static(""), "", OutcomeUpdateAvailable, UpdateAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{Policy: tt.policy}, Deps{Resolver: resolving(candidate(tt.tag)), Installed: tt.installed})

			out := l.Check(context.Background())
			require.NoError(t, out.Err)
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, tt.wantState, l.State())
			assert.Equal(t, tt.tag, out.CandidateTag())
		})
	}
}

func TestCheckNoCandidate(t *testing.T) {
	l := New(Config{}, Deps{Resolver: resolving(nil), Installed: state.Static("1.0")})

	out := l.Check(context.Background())
	assert.Equal(t, OutcomeNoUpdate, out.Kind)
	assert.Nil(t, out.Candidate)
	assert.Equal(t, Idle, l.State())
}

func TestCheckErrorsSurfaceVerbatim(t *testing.T) {
	tests := []struct {
		name      string
		resolver  *fakeResolver
		installed state.Reader
		want      error
	}{
		{
			name:     "malformed feed",
			resolver: &fakeResolver{results: []resolveResult{{err: update.NewError(update.KindFeedMalformed, "decode", errors.New("bad"))}}},
			want:     update.ErrFeedMalformed,
		},
		{
			name:      "bad candidate tag",
			resolver:  resolving(candidate("latest")),
			installed: state.Static("1.0"),
			want:      update.ErrInvalidVersion,
		},
		{
			name:      "bad installed version",
			resolver:  resolving(candidate("2.0")),
			installed: state.Static("unknown"),
			want:      update.ErrInvalidVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{}, Deps{Resolver: tt.resolver, Installed: tt.installed})
			out := l.Check(context.Background())
			assert.Equal(t, OutcomeFailed, out.Kind)
			assert.ErrorIs(t, out.Err, tt.want)
			assert.Equal(t, Idle, l.State())
		})
	}
}

func TestCheckRetriesUnavailableFeed(t *testing.T) {
	unavailable := update.NewError(update.KindFeedUnavailable, "fetch feed", errors.New("503"))
	r := &fakeResolver{results: []resolveResult{
		{err: unavailable},
		{err: unavailable},
		{candidate: candidate("2.0")},
	}}

	l := New(Config{FeedRetries: 3, FeedRetryInterval: time.Millisecond}, Deps{Resolver: r, Installed: state.Static("1.0")})
	out := l.Check(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeUpdateAvailable, out.Kind)
	assert.Equal(t, 3, r.calls)
}

func TestCheckDoesNotRetryMalformedFeed(t *testing.T) {
	r := &fakeResolver{results: []resolveResult{{err: update.NewError(update.KindFeedMalformed, "", errors.New("x"))}}}

	l := New(Config{FeedRetries: 5, FeedRetryInterval: time.Millisecond}, Deps{Resolver: r})
	out := l.Check(context.Background())

	assert.ErrorIs(t, out.Err, update.ErrFeedMalformed)
	assert.Equal(t, 1, r.calls)
}

func TestInvalidTransitions(t *testing.T) {
	l := New(Config{}, Deps{Resolver: resolving(candidate("2.0"))})

	out := l.Download(context.Background(), candidate("2.0"), nil)
	assert.ErrorIs(t, out.Err, ErrInvalidTransition)

	out = l.ApplyArchive(context.Background(), "x.zip", nil)
	assert.ErrorIs(t, out.Err, ErrInvalidTransition)

	out = l.Relaunch(context.Background(), "a", "b")
	assert.ErrorIs(t, out.Err, ErrInvalidTransition)

	assert.Equal(t, Idle, l.State())
}

func TestDownloadCancelledReturnsToIdle(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{cancelled: true}
	l := New(Config{Executable: filepath.Join(dir, "app")}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   fetcher,
		Installed: state.Static("1.0"),
	})

	checked := l.Check(context.Background())
	require.Equal(t, OutcomeUpdateAvailable, checked.Kind)

	out := l.Download(context.Background(), checked.Candidate, nil)
	assert.Equal(t, OutcomeCancelled, out.Kind)
	assert.Equal(t, Idle, l.State())
	require.Len(t, fetcher.requests, 1)
	assert.Equal(t, filepath.Join(dir, "app.update"), fetcher.requests[0].Destination)
}

type failingVerifier struct{}

func (failingVerifier) Verify(context.Context, *update.Candidate, string) error {
	return update.NewError(update.KindIntegrity, "verify", errors.New("checksum mismatch"))
}

func TestDownloadVerificationFailureDeletesArtifact(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Executable: filepath.Join(dir, "app")}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   &fakeFetcher{content: []byte("new")},
		Verifier:  failingVerifier{},
		Installed: state.Static("1.0"),
	})

	checked := l.Check(context.Background())
	out := l.Download(context.Background(), checked.Candidate, nil)

	assert.ErrorIs(t, out.Err, update.ErrIntegrity)
	assert.Equal(t, Idle, l.State())
	assert.NoFileExists(t, filepath.Join(dir, "app.update"))
}

func TestRunExecutableRelaunches(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "app")
	launcher := &fakeLauncher{}

	l := New(Config{Executable: exe, RelaunchArgs: []string{"--config", "swapup.yaml"}}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   &fakeFetcher{content: []byte("new binary")},
		Installed: state.Static("1.0"),
		Launcher:  launcher,
	})
	transitions := collectTransitions(l)

	var events []update.ProgressEvent
	out := l.Run(context.Background(), func(e update.ProgressEvent) { events = append(events, e) }, nil)

	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeRelaunched, out.Kind)
	assert.Equal(t, "1.0", out.Installed)
	assert.Equal(t, "2.0", out.CandidateTag())
	assert.Equal(t, Relaunching, l.State())

	staged := filepath.Join(dir, "app.update")
	assert.FileExists(t, staged)
	require.Len(t, launcher.launches, 1)
	assert.Equal(t, launch{
		path: staged,
		args: []string{"apply-update", "--target", exe, "--launch", "--release", "2.0", "--config", "swapup.yaml"},
	}, launcher.launches[0])
	assert.NotEmpty(t, events)

	assertTransitions(t, transitions(),
		Idle, CheckingForUpdate, UpdateAvailable, Downloading, Downloaded, Relaunching)
}

func TestRunRelaunchFailure(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Executable: filepath.Join(dir, "app")}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   &fakeFetcher{content: []byte("x")},
		Installed: state.Static("1.0"),
		Launcher:  &fakeLauncher{err: errors.New("exec format error")},
	})

	out := l.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, out.Err, update.ErrApplyFailed)
	assert.Equal(t, Idle, l.State())
}

func TestRunDeclined(t *testing.T) {
	fetcher := &fakeFetcher{}
	l := New(Config{Executable: "app"}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   fetcher,
		Installed: state.Static("1.0"),
	})

	out := l.Run(context.Background(), nil, func(Outcome) bool { return false })
	assert.Equal(t, OutcomeUpdateAvailable, out.Kind)
	assert.Equal(t, Idle, l.State())
	assert.Empty(t, fetcher.requests)
}

func TestRunRecoversPanics(t *testing.T) {
	l := New(Config{}, Deps{Resolver: &fakeResolver{panics: true}})

	var last update.ProgressEvent
	out := l.Run(context.Background(), func(e update.ProgressEvent) { last = e }, nil)

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.ErrorContains(t, out.Err, "resolver exploded")
	assert.Contains(t, last.Message, "Update failed")
	assert.Equal(t, Idle, l.State())
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRunArchiveEndToEnd(t *testing.T) {
	payload := zipBytes(t, map[string]string{
		"ElvUI/ElvUI.toc":       "## Version: 13.75\n",
		"ElvUI/Core/init.lua":   "-- new",
		"ElvUI_Config/opts.lua": "-- opts",
	})

	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"tag_name": "v13.75", "prerelease": false, "assets": [
			{"name": "elvui.zip", "browser_download_url": "` + serverURL + `/elvui.zip"}]}]`))
	})
	mux.HandleFunc("/elvui.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	target := t.TempDir()
	stale := filepath.Join(target, "ElvUI", "Removed.lua")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "ElvUI", "ElvUI.toc"), []byte("## Version: 13.74\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "Other.lua"), []byte("keep"), 0644))

	downloads := t.TempDir()
	results := NewResultHandler(t.TempDir())

	l := New(Config{
		Query:       update.Query{FeedURL: server.URL + "/feed", AssetName: "ElvUI.zip"},
		Style:       types.StyleArchive,
		DownloadDir: downloads,
		TargetDir:   target,
		CleanPaths:  []string{"ElvUI", "ElvUI_Config"},
	}, Deps{
		Installed: &state.MarkerFileReader{Path: filepath.Join(target, "ElvUI", "ElvUI.toc")},
		Results:   results,
	})
	transitions := collectTransitions(l)

	out := l.Run(context.Background(), nil, nil)
	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeApplied, out.Kind)
	assert.Equal(t, "13.74", out.Installed)
	assert.Equal(t, Idle, l.State())

	content, err := os.ReadFile(filepath.Join(target, "ElvUI", "Core", "init.lua"))
	require.NoError(t, err)
	assert.Equal(t, "-- new", string(content))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(target, "Other.lua"))
	assert.NoFileExists(t, filepath.Join(downloads, "elvui.zip"), "archive should be cleaned up")

	res, err := results.Read()
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "v13.75", res.Version)

	assertTransitions(t, transitions(),
		Idle, CheckingForUpdate, UpdateAvailable, Downloading, Downloaded,
		Applying, Applied, CleaningUp, Idle)

	// A second run finds the marker up to date.
	again := New(Config{
		Query:     update.Query{FeedURL: server.URL + "/feed", AssetName: "elvui.zip"},
		Style:     types.StyleArchive,
		TargetDir: target,
	}, Deps{Installed: &state.MarkerFileReader{Path: filepath.Join(target, "ElvUI", "ElvUI.toc")}})
	assert.Equal(t, OutcomeNoUpdate, again.Check(context.Background()).Kind)
}

func TestApplyArchiveTraversalFails(t *testing.T) {
	l := New(Config{Style: types.StyleArchive, DownloadDir: t.TempDir(), TargetDir: t.TempDir()}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   &fakeFetcher{content: zipBytes(t, map[string]string{"../../evil.txt": "x"})},
		Installed: state.Static("1.0"),
	})

	out := l.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, out.Err, update.ErrPathTraversal)
	assert.Equal(t, Idle, l.State())
}

func TestApplyReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app")
	artifact := filepath.Join(dir, "app.update")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0755))
	require.NoError(t, os.WriteFile(artifact, []byte("new"), 0755))

	tests := []struct {
		name           string
		launch         bool
		artifactRemain bool
	}{
		{"launch delegates cleanup", true, true},
		{"no launch removes artifact", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(artifact, []byte("new"), 0755))
			waiter := &fakeWaiter{timedOut: true}
			launcher := &fakeLauncher{}
			results := NewResultHandler(filepath.Join(dir, "state"))

			l := New(Config{}, Deps{Processes: waiter, Launcher: launcher, Results: results})
			transitions := collectTransitions(l)

			out := l.Apply(context.Background(), ApplyRequest{
				Artifact: artifact, Target: target, Launch: tt.launch, Version: "2.0",
			}, nil)

			require.NoError(t, out.Err)
			assert.Equal(t, OutcomeApplied, out.Kind)
			assert.Equal(t, []string{"app"}, waiter.names)

			content, err := os.ReadFile(target)
			require.NoError(t, err)
			assert.Equal(t, "new", string(content))

			if tt.artifactRemain {
				assert.FileExists(t, artifact)
				require.Len(t, launcher.launches, 1)
				assert.Equal(t, launch{path: target, args: []string{"cleanup", "--target", artifact}}, launcher.launches[0])
			} else {
				assert.NoFileExists(t, artifact)
				assert.Empty(t, launcher.launches)
			}

			res, err := results.Read()
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, "2.0", res.Version)
			assert.Equal(t, target, res.Target)

			assertTransitions(t, transitions(), Idle, Applying, Applied, CleaningUp, Idle)
		})
	}
}

func TestApplyFailureIsReportedNotRetried(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "app.update")
	require.NoError(t, os.WriteFile(artifact, []byte("new"), 0755))

	replacer := &fakeReplacer{err: errors.New("text file busy")}
	launcher := &fakeLauncher{}
	results := NewResultHandler(dir)

	l := New(Config{}, Deps{Processes: &fakeWaiter{}, Replacer: replacer, Launcher: launcher, Results: results})
	transitions := collectTransitions(l)

	var events []update.ProgressEvent
	out := l.Apply(context.Background(), ApplyRequest{Artifact: artifact, Target: filepath.Join(dir, "app"), Launch: true},
		func(e update.ProgressEvent) { events = append(events, e) })

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.ErrorIs(t, out.Err, update.ErrApplyFailed)
	assert.Empty(t, launcher.launches)
	assert.NoFileExists(t, artifact)
	require.NotEmpty(t, events)
	assert.Contains(t, events[len(events)-1].Message, "Update failed")

	res, err := results.Read()
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "text file busy")

	assertTransitions(t, transitions(), Idle, Applying, ApplyFailed, CleaningUp, Idle)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "app.update")
	require.NoError(t, os.WriteFile(artifact, []byte("x"), 0755))

	waiter := &fakeWaiter{}
	l := New(Config{}, Deps{Processes: waiter})

	require.NoError(t, l.Cleanup(context.Background(), artifact))
	assert.NoFileExists(t, artifact)
	assert.Equal(t, []string{"app.update"}, waiter.names)
	assert.Equal(t, Idle, l.State())

	// Already gone is fine.
	require.NoError(t, l.Cleanup(context.Background(), artifact))
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	l := New(Config{}, Deps{Resolver: resolving(nil)})
	ch, stop := l.Subscribe(1)
	defer stop()

	done := make(chan Outcome, 1)
	go func() { done <- l.Check(context.Background()) }()

	select {
	case out := <-done:
		assert.Equal(t, OutcomeNoUpdate, out.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle blocked on a full subscriber")
	}

	first := <-ch
	assert.Equal(t, Transition{From: Idle, To: CheckingForUpdate, At: first.At}, first)
	select {
	case extra := <-ch:
		t.Errorf("unexpected buffered transition %+v", extra)
	default:
	}
}

type panickingReplacer struct{}

func (panickingReplacer) Replace(context.Context, string, string) error {
	panic("boom")
}

func TestApplyRecoversPanic(t *testing.T) {
	dir := t.TempDir()
	results := NewResultHandler(dir)
	l := New(Config{}, Deps{Processes: &fakeWaiter{}, Replacer: panickingReplacer{}, Launcher: &fakeLauncher{}, Results: results})

	var out Outcome
	require.NotPanics(t, func() {
		out = l.Apply(context.Background(), ApplyRequest{
			Artifact: filepath.Join(dir, "app.update"), Target: filepath.Join(dir, "app"), Version: "2.0",
		}, nil)
	})

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.ErrorIs(t, out.Err, update.ErrApplyFailed)
	assert.Equal(t, Idle, l.State())

	res, err := results.Read()
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.Equal(t, "2.0", res.Version)
}

func TestApplyReportsEveryReplaceErrorAsApplyFailed(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "app.update")
	require.NoError(t, os.WriteFile(artifact, []byte("new"), 0755))

	replacer := &fakeReplacer{err: update.NewError(update.KindIO, "replace", errors.New("read-only file system"))}
	l := New(Config{}, Deps{Processes: &fakeWaiter{}, Replacer: replacer, Launcher: &fakeLauncher{}})

	out := l.Apply(context.Background(), ApplyRequest{Artifact: artifact, Target: filepath.Join(dir, "app")}, nil)

	assert.Equal(t, update.KindApplyFailed, update.KindOf(out.Err))
	assert.ErrorIs(t, out.Err, update.ErrIO, "the cause stays reachable")
}

func TestRelaunchClearsPreviousResult(t *testing.T) {
	dir := t.TempDir()
	results := NewResultHandler(filepath.Join(dir, "state"))
	require.NoError(t, results.Write(ApplyResult{Success: true, Version: "1.0"}))

	l := New(Config{Executable: filepath.Join(dir, "app")}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   &fakeFetcher{content: []byte("new binary")},
		Installed: state.Static("1.0"),
		Launcher:  &fakeLauncher{},
		Results:   results,
	})

	out := l.Run(context.Background(), nil, nil)
	require.Equal(t, OutcomeRelaunched, out.Kind)

	_, err := results.Read()
	assert.ErrorIs(t, err, os.ErrNotExist)

	// A watcher started now waits for the new result instead of returning
	// the previous one.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = results.Watch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestApplyArchiveReplacesPreviousResult(t *testing.T) {
	results := NewResultHandler(t.TempDir())
	require.NoError(t, results.Write(ApplyResult{Success: false, Error: "old failure", Version: "1.0"}))

	var sawResult bool
	l := New(Config{Style: types.StyleArchive, DownloadDir: t.TempDir(), TargetDir: t.TempDir()}, Deps{
		Resolver:  resolving(candidate("2.0")),
		Fetcher:   &fakeFetcher{content: []byte("zip")},
		Installed: state.Static("1.0"),
		Results:   results,
		Clean:     func(string, []string) error { return nil },
		Extract: func(context.Context, string, string, update.ProgressSink) error {
			_, err := results.Read()
			sawResult = err == nil
			return nil
		},
	})

	out := l.Run(context.Background(), nil, nil)
	require.NoError(t, out.Err)
	assert.False(t, sawResult, "previous result should be gone while applying")

	res, err := results.Read()
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "2.0", res.Version)
}
