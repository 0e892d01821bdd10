package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	binaryPath string // built as version 1.0.0
	newerPath  string // built as version 2.0.0
)

// TestMain builds two copies of the binary before running tests
func TestMain(m *testing.M) {
	buildDir, err := os.MkdirTemp("", "swapup-e2e-build-*")
	if err != nil {
		panic("failed to create build dir: " + err.Error())
	}

	binaryPath = filepath.Join(buildDir, "swapup")
	newerPath = filepath.Join(buildDir, "swapup-2")
	for path, version := range map[string]string{binaryPath: "1.0.0", newerPath: "2.0.0"} {
		cmd := exec.Command("go", "build", "-ldflags", "-X main.version="+version, "-o", path, "../../cmd/swapup")
		if out, err := cmd.CombinedOutput(); err != nil {
			panic("failed to build binary: " + err.Error() + "\n" + string(out))
		}
	}

	code := m.Run()

	_ = os.RemoveAll(buildDir)
	os.Exit(code)
}

// runSwapup executes a binary with an isolated environment
func runSwapup(t *testing.T, binary string, args ...string) (string, string, error) {
	t.Helper()

	home := t.TempDir()
	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
		"XDG_STATE_HOME="+filepath.Join(home, ".local", "state"),
		"XDG_CACHE_HOME="+filepath.Join(home, ".cache"),
		"SWAPUP_CONFIG=",
	)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path string, content []byte, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		t.Fatal(err)
	}
}

// feedServer serves a single release at /feed whose asset is payload
func feedServer(t *testing.T, tag, asset string, payload []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		release := []map[string]interface{}{{
			"tag_name":   tag,
			"prerelease": false,
			"assets": []map[string]interface{}{{
				"name":                 asset,
				"browser_download_url": server.URL + "/download/" + asset,
				"size":                 len(payload),
			}},
		}}
		_ = json.NewEncoder(w).Encode(release)
	})
	mux.HandleFunc("/download/"+asset, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	return server
}

func zipPayload(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestVersionCommand(t *testing.T) {
	stdout, stderr, err := runSwapup(t, binaryPath, "version")
	if err != nil {
		t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "swapup version 1.0.0") {
		t.Errorf("unexpected output: %s", stdout)
	}

	stdout, _, err = runSwapup(t, binaryPath, "version", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, stdout)
	}
	if info["version"] != "1.0.0" {
		t.Errorf("version = %s", info["version"])
	}
}

func TestArchiveUpdate(t *testing.T) {
	payload := zipPayload(t, map[string]string{
		"ElvUI/ElvUI.toc":      "## Version: 13.75\n",
		"ElvUI/Core/init.lua":  "-- new",
		"ElvUI_Config/opt.lua": "-- opt",
	})
	server := feedServer(t, "v13.75", "elvui.zip", payload)

	dir := t.TempDir()
	target := filepath.Join(dir, "AddOns")
	writeFile(t, filepath.Join(target, "ElvUI", "ElvUI.toc"), []byte("## Version: 13.74\n"), 0644)
	writeFile(t, filepath.Join(target, "ElvUI", "Removed.lua"), []byte("-- old"), 0644)

	cfgPath := filepath.Join(dir, "swapup.yaml")
	writeFile(t, cfgPath, []byte(`version: 1
feed:
  url: `+server.URL+`/feed
asset: elvui.zip
style: archive
target:
  dir: `+target+`
  marker_file: ElvUI/ElvUI.toc
  clean_paths: [ElvUI, ElvUI_Config]
download_dir: `+filepath.Join(dir, "downloads")+`
state_dir: `+filepath.Join(dir, "state")+`
`), 0644)

	t.Run("check reports the update", func(t *testing.T) {
		stdout, stderr, err := runSwapup(t, binaryPath, "check", "--config", cfgPath, "-o", "yaml")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}

		var report map[string]interface{}
		if err := yaml.Unmarshal([]byte(stdout), &report); err != nil {
			t.Fatalf("output is not valid YAML: %v\noutput: %s", err, stdout)
		}
		if report["outcome"] != "update-available" || report["installed"] != "13.74" {
			t.Errorf("report = %v", report)
		}
	})

	t.Run("update without --yes only reports", func(t *testing.T) {
		_, stderr, err := runSwapup(t, binaryPath, "update", "--config", cfgPath)
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stderr, "swapup update --yes") {
			t.Errorf("expected hint on stderr, got: %s", stderr)
		}
		if _, err := os.Stat(filepath.Join(target, "ElvUI", "Removed.lua")); err != nil {
			t.Error("nothing should be applied without confirmation")
		}
	})

	t.Run("update --yes extracts in place", func(t *testing.T) {
		stdout, stderr, err := runSwapup(t, binaryPath, "update", "--yes", "--config", cfgPath)
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stdout, "Update installed") {
			t.Errorf("unexpected output: %s", stdout)
		}

		if _, err := os.Stat(filepath.Join(target, "ElvUI", "Removed.lua")); !os.IsNotExist(err) {
			t.Error("clean path was not removed")
		}
		data, err := os.ReadFile(filepath.Join(target, "ElvUI", "Core", "init.lua"))
		if err != nil || string(data) != "-- new" {
			t.Errorf("init.lua = %q, %v", data, err)
		}
	})

	t.Run("result shows the apply", func(t *testing.T) {
		stdout, stderr, err := runSwapup(t, binaryPath, "result", "--config", cfgPath, "-o", "json")
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		var result map[string]interface{}
		if err := json.Unmarshal([]byte(stdout), &result); err != nil {
			t.Fatalf("output is not valid JSON: %v\noutput: %s", err, stdout)
		}
		if result["success"] != true || result["version"] != "v13.75" {
			t.Errorf("result = %v", result)
		}
	})

	t.Run("check is now up to date", func(t *testing.T) {
		stdout, stderr, err := runSwapup(t, binaryPath, "check", "--config", cfgPath)
		if err != nil {
			t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stdout, "Already running latest version") {
			t.Errorf("unexpected output: %s", stdout)
		}
	})
}

func TestArchiveUpdateRejectsTraversal(t *testing.T) {
	payload := zipPayload(t, map[string]string{
		"ElvUI/ElvUI.toc": "## Version: 14.0\n",
		"../escape.txt":   "pwned",
	})
	server := feedServer(t, "v14.0", "elvui.zip", payload)

	dir := t.TempDir()
	target := filepath.Join(dir, "AddOns")
	writeFile(t, filepath.Join(target, "ElvUI", "ElvUI.toc"), []byte("## Version: 13.0\n"), 0644)

	cfgPath := filepath.Join(dir, "swapup.yaml")
	writeFile(t, cfgPath, []byte(`version: 1
feed:
  url: `+server.URL+`/feed
asset: elvui.zip
style: archive
target:
  dir: `+target+`
  marker_file: ElvUI/ElvUI.toc
download_dir: `+filepath.Join(dir, "downloads")+`
state_dir: `+filepath.Join(dir, "state")+`
`), 0644)

	stdout, _, err := runSwapup(t, binaryPath, "update", "--yes", "--config", cfgPath, "-o", "json")
	if err == nil {
		t.Fatal("expected update to fail")
	}

	var report map[string]interface{}
	if jerr := json.Unmarshal([]byte(stdout), &report); jerr != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", jerr, stdout)
	}
	if report["error_kind"] != "path traversal" {
		t.Errorf("report = %v", report)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped the target directory")
	}
}

func TestExecutableSelfUpdate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relaunch flow is exercised on unix")
	}
	if testing.Short() {
		t.Skip("skipping relaunch flow in short mode")
	}

	newer, err := os.ReadFile(newerPath)
	if err != nil {
		t.Fatal(err)
	}
	server := feedServer(t, "v2.0.0", "tool", newer)

	dir := t.TempDir()
	tool := filepath.Join(dir, "tool")
	current, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, tool, current, 0755)

	cfgPath := filepath.Join(dir, "swapup.yaml")
	writeFile(t, cfgPath, []byte(`version: 1
feed:
  url: `+server.URL+`/feed
asset: tool
wait_timeout: 5s
state_dir: `+filepath.Join(dir, "state")+`
`), 0644)

	stdout, stderr, err := runSwapup(t, tool, "update", "--yes", "--config", cfgPath)
	if err != nil {
		t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Restarting to apply update") {
		t.Fatalf("unexpected output: %s", stdout)
	}

	stdout, stderr, err = runSwapup(t, tool, "result", "--watch", "--timeout", "30s", "--config", cfgPath, "-o", "json")
	if err != nil {
		t.Fatalf("result failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, stdout)
	}
	if result["success"] != true || result["version"] != "v2.0.0" {
		t.Errorf("result = %v", result)
	}

	stdout, _, err = runSwapup(t, tool, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "swapup version 2.0.0") {
		t.Errorf("tool was not replaced: %s", stdout)
	}

	// The relaunched tool removes the downloaded copy.
	staged := filepath.Join(dir, "tool.update")
	deadline := time.Now().Add(15 * time.Second)
	for {
		if _, err := os.Stat(staged); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s was not cleaned up", staged)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestInitCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "swapup.yaml")

	stdout, stderr, err := runSwapup(t, binaryPath, "init", "--template", "archive", "--config", out)
	if err != nil {
		t.Fatalf("command failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Created "+out) {
		t.Errorf("unexpected output: %s", stdout)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "style: archive") {
		t.Errorf("unexpected config: %s", content)
	}
}

func TestInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "swapup.yaml")
	writeFile(t, cfgPath, []byte("version: 1\nfeed:\n  url: ftp://example.com\nstyle: archive\n"), 0644)

	_, stderr, err := runSwapup(t, binaryPath, "check", "--config", cfgPath)
	if err == nil {
		t.Fatal("expected failure for invalid config")
	}
	for _, want := range []string{"feed.url", "target.dir"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr should mention %s: %s", want, stderr)
		}
	}
}

func TestMissingConfig(t *testing.T) {
	_, stderr, err := runSwapup(t, binaryPath, "check")
	if err == nil {
		t.Fatal("expected failure without config")
	}
	if !strings.Contains(stderr, "no swapup config found") {
		t.Errorf("unexpected stderr: %s", stderr)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	_, stderr, err := runSwapup(t, binaryPath, "version", "-o", "xml")
	if err == nil {
		t.Fatal("expected failure for invalid output format")
	}
	if !strings.Contains(stderr, "must be text, json, or yaml") {
		t.Errorf("unexpected stderr: %s", stderr)
	}
}
