// Package artifact keeps track of downloaded update artifacts that were not
// consumed, so a later run can clean them up.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PartialSuffix marks an unfinished download.
const PartialSuffix = ".part"

// Info provides summary information about a stored artifact.
type Info struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Partial    bool      `json:"partial,omitempty"`
}

// Manager handles the download directory.
type Manager struct {
	dir string
}

// NewManager creates a manager for the default download directory.
func NewManager() (*Manager, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return &Manager{dir: dir}, nil
}

// NewManagerWithDir creates a manager with a custom directory.
func NewManagerWithDir(dir string) *Manager {
	return &Manager{dir: dir}
}

// DefaultDir returns the default download directory,
// $XDG_CACHE_HOME/swapup or ~/.cache/swapup.
func DefaultDir() (string, error) {
	// Use XDG_CACHE_HOME or default to ~/.cache
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "swapup"), nil
}

// List returns all files in the directory sorted by modification time
// (newest first). Subdirectories are ignored.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read download directory: %w", err)
	}

	var artifacts []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		artifacts = append(artifacts, Info{
			Name:       entry.Name(),
			Path:       filepath.Join(m.dir, entry.Name()),
			ModifiedAt: info.ModTime(),
			Size:       info.Size(),
			Partial:    strings.HasSuffix(entry.Name(), PartialSuffix),
		})
	}

	// Sort by modification time, newest first
	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].ModifiedAt.After(artifacts[j].ModifiedAt)
	})

	return artifacts, nil
}

// Delete removes an artifact by name. A missing file is not an error.
func (m *Manager) Delete(name string) error {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name: %s", name)
	}

	path := filepath.Join(m.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Dir returns the download directory path.
func (m *Manager) Dir() string {
	return m.dir
}
