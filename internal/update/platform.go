package update

import (
	"path/filepath"
	"runtime"
	"strings"
)

// UpdateInfix marks a downloaded executable waiting to be applied,
// e.g. "app.update.exe" for "app.exe".
const UpdateInfix = ".update"

// Platform identifies the OS and architecture assets are built for
type Platform struct {
	OS   string
	Arch string
}

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// ExecutableExt returns ".exe" on windows and "" elsewhere
func (p Platform) ExecutableExt() string {
	if p.OS == "windows" {
		return ".exe"
	}
	return ""
}

// ExpandAssetName replaces %os, %arch and %ext in pattern.
func (p Platform) ExpandAssetName(pattern string) string {
	return strings.NewReplacer(
		"%os", p.OS,
		"%arch", p.Arch,
		"%ext", p.ExecutableExt(),
	).Replace(pattern)
}

// DefaultAssetName is the base name of the running executable, the name
// an executable-style release publishes its binary under.
func DefaultAssetName(executable string) string {
	return filepath.Base(executable)
}

// StagedName returns where a downloaded replacement for executable is kept
// before it is applied: "dir/app.exe" becomes "dir/app.update.exe".
func StagedName(executable string) string {
	ext := filepath.Ext(executable)
	if !strings.EqualFold(ext, ".exe") {
		ext = ""
	}
	return strings.TrimSuffix(executable, ext) + UpdateInfix + ext
}

// DefaultApplyTarget reverses StagedName. ok is false when path does not
// carry the update infix.
func DefaultApplyTarget(path string) (string, bool) {
	dir, base := filepath.Split(path)

	lower := strings.ToLower(base)
	ext := ""
	if strings.HasSuffix(lower, ".exe") {
		ext = base[len(base)-4:]
		base = base[:len(base)-4]
		lower = lower[:len(lower)-4]
	}

	if !strings.HasSuffix(lower, UpdateInfix) || len(base) == len(UpdateInfix) {
		return "", false
	}
	return dir + base[:len(base)-len(UpdateInfix)] + ext, true
}
