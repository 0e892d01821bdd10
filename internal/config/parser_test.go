package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adamancini/swapup/internal/types"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		content  string
		expected Format
	}{
		{"yaml extension", "swapup.yaml", "", FormatYAML},
		{"yml extension", "swapup.yml", "", FormatYAML},
		{"toml extension", "swapup.toml", "", FormatTOML},
		{"json extension", "swapup.json", "", FormatJSON},
		{"json content", "swapup", `{"version": 1}`, FormatJSON},
		{"yaml content", "swapup", `version: 1`, FormatYAML},
		{"toml content", "swapup", `version = 1`, FormatTOML},
		{"toml section first", "swapup", "# updater\n[feed]\nurl = \"x\"", FormatTOML},
		{"yaml url value", "swapup", "asset: https://example.com/a=b", FormatYAML},
		{"unknown content", "swapup", `just words`, FormatUnknown},
		{"only comments", "swapup", "# nothing here\n", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectFormat(tt.path, []byte(tt.content))
			if got != tt.expected {
				t.Errorf("detectFormat() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "${TEST_VAR}", "test_value"},
		{"var with default", "${MISSING_VAR:-default_value}", "default_value"},
		{"existing var ignores default", "${TEST_VAR:-default_value}", "test_value"},
		{"empty var uses default", "${EMPTY_VAR:-default_value}", "default_value"},
		{"no var", "plain text", "plain text"},
		{"mixed content", "prefix ${TEST_VAR} suffix", "prefix test_value suffix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(ExpandEnv([]byte(tt.input)))
			if got != tt.expected {
				t.Errorf("ExpandEnv() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	content := []byte(`
version: 1
feed:
  url: https://api.github.com/repos/acme/tool/releases
  allow_prerelease: true
  ignore_tags: [v2.0.0-broken]
  timeout: 45s
asset: tool_%os_%arch%ext
style: archive
policy: always-offer
target:
  dir: /opt/game/AddOns
  marker_file: ElvUI/ElvUI.toc
  clean_paths: [ElvUI, ElvUI_Config]
wait_timeout: 3s
verify:
  checksum_asset: checksums.txt
`)

	cfg, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Feed.URL != "https://api.github.com/repos/acme/tool/releases" {
		t.Errorf("Feed.URL = %s", cfg.Feed.URL)
	}
	if !cfg.Feed.AllowPrerelease {
		t.Error("Feed.AllowPrerelease should be true")
	}
	if len(cfg.Feed.IgnoreTags) != 1 || cfg.Feed.IgnoreTags[0] != "v2.0.0-broken" {
		t.Errorf("Feed.IgnoreTags = %v", cfg.Feed.IgnoreTags)
	}
	if cfg.Feed.Timeout.Std() != 45*time.Second {
		t.Errorf("Feed.Timeout = %v, want 45s", cfg.Feed.Timeout.Std())
	}
	if cfg.Style != types.StyleArchive {
		t.Errorf("Style = %s, want archive", cfg.Style)
	}
	if cfg.Policy != types.PolicyAlwaysOffer {
		t.Errorf("Policy = %s, want always-offer", cfg.Policy)
	}
	if len(cfg.Target.CleanPaths) != 2 {
		t.Errorf("Target.CleanPaths count = %d, want 2", len(cfg.Target.CleanPaths))
	}
	if cfg.WaitTimeout.Std() != 3*time.Second {
		t.Errorf("WaitTimeout = %v, want 3s", cfg.WaitTimeout.Std())
	}
	if cfg.Verify.ChecksumAsset != "checksums.txt" {
		t.Errorf("Verify.ChecksumAsset = %s", cfg.Verify.ChecksumAsset)
	}
	if got := cfg.Target.MarkerPath(); got != filepath.Join("/opt/game/AddOns", "ElvUI", "ElvUI.toc") {
		t.Errorf("MarkerPath() = %s", got)
	}
}

func TestParseTOML(t *testing.T) {
	content := []byte(`
version = 1
asset = "tool"
wait_timeout = "1m"

[feed]
url = "https://example.com/releases.json"
retries = 4
`)

	cfg, err := parse(content, FormatTOML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if cfg.Feed.Retries != 4 {
		t.Errorf("Feed.Retries = %d, want 4", cfg.Feed.Retries)
	}
	if cfg.WaitTimeout.Std() != time.Minute {
		t.Errorf("WaitTimeout = %v, want 1m", cfg.WaitTimeout.Std())
	}
}

func TestParseJSON(t *testing.T) {
	content := []byte(`{
  "version": 1,
  "feed": {"url": "https://example.com/releases.json", "token": "abc"},
  "install": {"dir": "/opt/tool", "name": "tool"},
  "log": {"level": "debug", "file": "/var/log/swapup.log"}
}`)

	cfg, err := parse(content, FormatJSON)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if cfg.Feed.Token != "abc" {
		t.Errorf("Feed.Token = %s, want abc", cfg.Feed.Token)
	}
	if cfg.Install.Dir != "/opt/tool" || cfg.Install.Name != "tool" {
		t.Errorf("Install = %+v", cfg.Install)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
}

func TestParseInvalidDuration(t *testing.T) {
	_, err := parse([]byte("version: 1\nwait_timeout: soon\n"), FormatYAML)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestParseEnvVarExpansion(t *testing.T) {
	t.Setenv("SWAPUP_TEST_TOKEN", "secret")

	content := []byte(`
version: 1
feed:
  url: ${SWAPUP_TEST_FEED:-https://example.com/feed}
  token: ${SWAPUP_TEST_TOKEN}
`)

	cfg, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if cfg.Feed.URL != "https://example.com/feed" {
		t.Errorf("Feed.URL = %s", cfg.Feed.URL)
	}
	if cfg.Feed.Token != "secret" {
		t.Errorf("Feed.Token = %s, want secret", cfg.Feed.Token)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	path := filepath.Join(t.TempDir(), "swapup.yaml")
	if err := os.WriteFile(path, []byte("feed:\n  url: https://example.com/feed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d", cfg.Version)
	}
	if cfg.Style != types.StyleExecutable {
		t.Errorf("Style = %s, want executable", cfg.Style)
	}
	if cfg.Policy != types.PolicyUpgradeOnly {
		t.Errorf("Policy = %s, want upgrade-only", cfg.Policy)
	}
	if cfg.Feed.Retries != DefaultFeedRetries {
		t.Errorf("Feed.Retries = %d", cfg.Feed.Retries)
	}
	if cfg.WaitTimeout.Std() != DefaultWaitTimeout {
		t.Errorf("WaitTimeout = %v", cfg.WaitTimeout.Std())
	}
	if cfg.StateDir != filepath.Join("/tmp/state", "swapup") {
		t.Errorf("StateDir = %s", cfg.StateDir)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapup.json")
	if err := os.WriteFile(path, []byte(`{"style": "msi"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFindConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("SWAPUP_CONFIG", "")

	if _, err := FindConfig(""); err == nil {
		t.Error("expected error when nothing exists")
	}

	dotDir := filepath.Join(home, ".swapup")
	if err := os.MkdirAll(dotDir, 0755); err != nil {
		t.Fatal(err)
	}
	dotFile := filepath.Join(dotDir, "swapup.toml")
	if err := os.WriteFile(dotFile, []byte("version = 1"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig("")
	if err != nil || got != dotFile {
		t.Errorf("FindConfig() = %q, %v; want %q", got, err, dotFile)
	}

	xdgDir := filepath.Join(home, ".config", "swapup")
	if err := os.MkdirAll(xdgDir, 0755); err != nil {
		t.Fatal(err)
	}
	xdgFile := filepath.Join(xdgDir, "swapup.yaml")
	if err := os.WriteFile(xdgFile, []byte("version: 1"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err = FindConfig("")
	if err != nil || got != xdgFile {
		t.Errorf("FindConfig() = %q, %v; want %q", got, err, xdgFile)
	}

	envFile := filepath.Join(t.TempDir(), "custom.json")
	if err := os.WriteFile(envFile, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SWAPUP_CONFIG", envFile)

	got, err = FindConfig("")
	if err != nil || got != envFile {
		t.Errorf("FindConfig() = %q, %v; want %q", got, err, envFile)
	}

	if _, err := FindConfig(filepath.Join(home, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}
