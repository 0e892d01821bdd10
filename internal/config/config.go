// Package config handles updater file parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamancini/swapup/internal/types"
)

// CurrentVersion is the only config file version understood.
const CurrentVersion = 1

// Defaults applied to missing fields.
const (
	DefaultFeedRetries = 2
	DefaultFeedTimeout = 30 * time.Second
	DefaultWaitTimeout = 2 * time.Second
)

// Config is the parsed updater file.
type Config struct {
	Version     int                 `yaml:"version" toml:"version" json:"version"`
	Feed        Feed                `yaml:"feed" toml:"feed" json:"feed"`
	Asset       string              `yaml:"asset,omitempty" toml:"asset,omitempty" json:"asset,omitempty"` // %os, %arch and %ext are expanded
	Style       types.UpdateStyle   `yaml:"style,omitempty" toml:"style,omitempty" json:"style,omitempty"`
	Policy      types.UpgradePolicy `yaml:"policy,omitempty" toml:"policy,omitempty" json:"policy,omitempty"`
	Target      Target              `yaml:"target,omitempty" toml:"target,omitempty" json:"target,omitempty"`
	DownloadDir string              `yaml:"download_dir,omitempty" toml:"download_dir,omitempty" json:"download_dir,omitempty"`
	StateDir    string              `yaml:"state_dir,omitempty" toml:"state_dir,omitempty" json:"state_dir,omitempty"`
	WaitTimeout Duration            `yaml:"wait_timeout,omitempty" toml:"wait_timeout,omitempty" json:"wait_timeout,omitempty"`
	Verify      Verify              `yaml:"verify,omitempty" toml:"verify,omitempty" json:"verify,omitempty"`
	Install     Install             `yaml:"install,omitempty" toml:"install,omitempty" json:"install,omitempty"`
	Log         Log                 `yaml:"log,omitempty" toml:"log,omitempty" json:"log,omitempty"`
}

// Feed describes the release feed.
type Feed struct {
	URL             string   `yaml:"url" toml:"url" json:"url"`
	Token           string   `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty"` // sent as a bearer token
	AllowPrerelease bool     `yaml:"allow_prerelease,omitempty" toml:"allow_prerelease,omitempty" json:"allow_prerelease,omitempty"`
	IgnoreTags      []string `yaml:"ignore_tags,omitempty" toml:"ignore_tags,omitempty" json:"ignore_tags,omitempty"`
	Retries         int      `yaml:"retries,omitempty" toml:"retries,omitempty" json:"retries,omitempty"`
	Timeout         Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Target describes what gets updated.
type Target struct {
	// Dir receives extracted archives (archive style)
	Dir string `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"`
	// MarkerFile is read for "## Version:", relative to Dir
	MarkerFile string   `yaml:"marker_file,omitempty" toml:"marker_file,omitempty" json:"marker_file,omitempty"`
	CleanPaths []string `yaml:"clean_paths,omitempty" toml:"clean_paths,omitempty" json:"clean_paths,omitempty"`
	// Executable updates another program instead of swapup itself
	Executable string `yaml:"executable,omitempty" toml:"executable,omitempty" json:"executable,omitempty"`
}

// Verify configures artifact checks.
type Verify struct {
	ChecksumAsset string `yaml:"checksum_asset,omitempty" toml:"checksum_asset,omitempty" json:"checksum_asset,omitempty"`
	MinisignKey   string `yaml:"minisign_key,omitempty" toml:"minisign_key,omitempty" json:"minisign_key,omitempty"`
	HealthCheck   bool   `yaml:"health_check,omitempty" toml:"health_check,omitempty" json:"health_check,omitempty"`
}

// Install configures the install command.
type Install struct {
	Dir  string `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"`
	Name string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	File  string `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty"`
}

// MarkerPath returns the marker file path, or "" when none is configured.
func (t Target) MarkerPath() string {
	if t.MarkerFile == "" {
		return ""
	}
	if filepath.IsAbs(t.MarkerFile) {
		return t.MarkerFile
	}
	return filepath.Join(t.Dir, t.MarkerFile)
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	c.Style = c.Style.Default()
	c.Policy = c.Policy.Default()
	if c.Feed.Retries == 0 {
		c.Feed.Retries = DefaultFeedRetries
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = Duration(DefaultFeedTimeout)
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = Duration(DefaultWaitTimeout)
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
}

// DefaultStateDir returns $XDG_STATE_HOME/swapup, falling back to
// ~/.local/state/swapup.
func DefaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "swapup")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "swapup")
	}
	return filepath.Join(home, ".local", "state", "swapup")
}

// fileNames are tried in each search directory, in order.
var fileNames = []string{
	"swapup.yaml",
	"swapup.yml",
	"swapup.toml",
	"swapup.json",
	".swapup.yaml",
	".swapup.yml",
	".swapup.toml",
	".swapup.json",
}

// FindConfig searches for an updater file in the standard locations.
// Returns the path to the first file found, or an error if none exists.
func FindConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv("SWAPUP_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, dir := range searchDirs() {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no swapup config found in standard locations")
}

func searchDirs() []string {
	var dirs []string

	home, err := os.UserHomeDir()
	if err == nil {
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		dirs = append(dirs, filepath.Join(xdgConfig, "swapup"), filepath.Join(home, ".swapup"))
	}

	// Next to the executable, for portable installs
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}

// Load reads, parses and validates an updater file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
