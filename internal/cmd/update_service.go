// Package cmd contains the CLI command implementations.
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/artifact"
	"github.com/adamancini/swapup/internal/config"
	"github.com/adamancini/swapup/internal/lifecycle"
	"github.com/adamancini/swapup/internal/state"
	"github.com/adamancini/swapup/internal/update"
)

// UpdateService turns a config file into a wired lifecycle and runs the
// housekeeping around it.
type UpdateService struct {
	configPath string
	version    string
	executable string

	// deps overrides the collaborators built from the config (for testing)
	deps lifecycle.Deps
	now  func() time.Time
}

// NewUpdateService creates a service for the running executable.
func NewUpdateService(configPath, version string) (*UpdateService, error) {
	exe, err := currentExecutable()
	if err != nil {
		return nil, fmt.Errorf("failed to get current binary path: %w", err)
	}
	return NewUpdateServiceWithDeps(configPath, version, exe, lifecycle.Deps{}), nil
}

// NewUpdateServiceWithDeps creates a service with custom dependencies (for testing).
func NewUpdateServiceWithDeps(configPath, version, executable string, deps lifecycle.Deps) *UpdateService {
	return &UpdateService{
		configPath: configPath,
		version:    version,
		executable: executable,
		deps:       deps,
		now:        time.Now,
	}
}

// LoadConfiguration finds and loads the config file.
func (s *UpdateService) LoadConfiguration() (*config.Config, string, error) {
	path, err := config.FindConfig(s.configPath)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, path, nil
}

// LoadOptionalConfiguration is LoadConfiguration for commands that work
// without a config file, such as apply-update and cleanup. A file that
// exists but does not load is still an error.
func (s *UpdateService) LoadOptionalConfiguration() (*config.Config, string, error) {
	if _, err := config.FindConfig(s.configPath); err != nil && s.configPath == "" {
		return defaultConfig(), "", nil
	}
	return s.LoadConfiguration()
}

// Lifecycle wires a lifecycle for cfg. cfgPath is handed to relaunched
// processes.
func (s *UpdateService) Lifecycle(cfg *config.Config, cfgPath string) (*lifecycle.Lifecycle, error) {
	executable := s.executable
	if cfg.Target.Executable != "" {
		executable = cfg.Target.Executable
	}

	asset := cfg.Asset
	if asset == "" {
		asset = update.DefaultAssetName(executable)
	}
	asset = update.Detect().ExpandAssetName(asset)

	downloadDir, err := s.downloadDir(cfg)
	if err != nil {
		return nil, err
	}

	lcfg := lifecycle.Config{
		Query: update.Query{
			FeedURL:         cfg.Feed.URL,
			AssetName:       asset,
			AllowPrerelease: cfg.Feed.AllowPrerelease,
			IgnoreTags:      cfg.Feed.IgnoreTags,
		},
		FeedRetries:  cfg.Feed.Retries,
		Style:        cfg.Style,
		Policy:       cfg.Policy,
		Executable:   executable,
		DownloadDir:  downloadDir,
		TargetDir:    cfg.Target.Dir,
		CleanPaths:   cfg.Target.CleanPaths,
		WaitTimeout:  cfg.WaitTimeout.Std(),
		RelaunchArgs: relaunchArgs(cfgPath),
	}

	deps := s.deps
	userAgent := fmt.Sprintf("%s/%s", strings.TrimSuffix(asset, filepath.Ext(asset)), s.version)

	resolver := update.NewResolver(&http.Client{Timeout: cfg.Feed.Timeout.Std()}).
		WithToken(cfg.Feed.Token).
		WithUserAgent(userAgent)
	if deps.Resolver == nil {
		deps.Resolver = resolver
	}
	if deps.Fetcher == nil {
		deps.Fetcher = update.NewDownloader(nil).WithUserAgent(userAgent)
	}
	if deps.Verifier == nil {
		if v := update.NewVerifier(resolver, cfg.Verify.ChecksumAsset, cfg.Verify.MinisignKey); v.Enabled() {
			deps.Verifier = v
		}
	}
	if deps.Installed == nil {
		deps.Installed = s.installedReader(cfg, executable)
	}
	if deps.Replacer == nil {
		replacer := update.NewBinaryReplacer()
		replacer.HealthCheck = cfg.Verify.HealthCheck
		deps.Replacer = replacer
	}
	if deps.Results == nil {
		deps.Results = lifecycle.NewResultHandler(cfg.StateDir)
	}

	return lifecycle.New(lcfg, deps), nil
}

// installedReader picks where the installed version comes from: the marker
// file for archives, the target's version output for another executable,
// and the build version for swapup itself.
func (s *UpdateService) installedReader(cfg *config.Config, executable string) state.Reader {
	if cfg.Style.IsArchive() {
		if marker := cfg.Target.MarkerPath(); marker != "" {
			return &state.MarkerFileReader{Path: marker}
		}
		return state.Static("")
	}

	if cfg.Target.Executable != "" {
		return &state.ExecReader{Path: executable}
	}

	if _, err := update.ParseVersion(s.version); err != nil {
		log.Warnf("build version %q is not a release version, treating as not installed", s.version)
		return state.Static("")
	}
	return state.Static(s.version)
}

func (s *UpdateService) downloadDir(cfg *config.Config) (string, error) {
	if cfg.DownloadDir != "" {
		return cfg.DownloadDir, nil
	}
	return artifact.DefaultDir()
}

// CleanupLeftovers removes what earlier updates left behind: the artifact
// named in the last apply result, a staged executable, stale partial
// downloads and archives beyond the newest few. Failures are only logged.
func (s *UpdateService) CleanupLeftovers(cfg *config.Config) {
	results := lifecycle.NewResultHandler(cfg.StateDir)
	if res, err := results.Read(); err == nil && res.Artifact != "" && res.Artifact != s.executable {
		removeLeftover(res.Artifact)
	}

	if !cfg.Style.IsArchive() {
		executable := s.executable
		if cfg.Target.Executable != "" {
			executable = cfg.Target.Executable
		}
		staged := update.StagedName(executable)
		if staged != s.executable {
			removeLeftover(staged)
		}

		partials, _ := filepath.Glob(staged + ".*" + artifact.PartialSuffix)
		for _, p := range partials {
			if info, err := os.Stat(p); err == nil && s.now().Sub(info.ModTime()) >= artifact.DefaultPartialAge {
				removeLeftover(p)
			}
		}
		return
	}

	dir, err := s.downloadDir(cfg)
	if err != nil {
		log.Warnf("no download directory: %v", err)
		return
	}
	result, err := artifact.NewManagerWithDir(dir).Prune(artifact.DefaultKeepCount, artifact.DefaultPartialAge, s.now())
	if err != nil {
		log.Warnf("cleanup of %s incomplete: %v", dir, err)
	}
	if result != nil && len(result.Deleted) > 0 {
		log.Infof("removed %d old download(s) from %s", len(result.Deleted), dir)
	}
}

func removeLeftover(path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		log.Infof("removed leftover %s", path)
	case !os.IsNotExist(err):
		log.Warnf("failed to remove leftover %s: %v", path, err)
	}
}
