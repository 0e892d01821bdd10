// Package install copies swapup into an install directory and keeps a
// record of it so uninstall knows what to remove.
package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/update"
)

// RecordFile is the name of the install record inside the state directory.
const RecordFile = "install.json"

// ErrNotInstalled is returned by Uninstall when there is no install record.
var ErrNotInstalled = errors.New("no install record found")

// Record describes an installation.
type Record struct {
	Name                  string `json:"name"`
	Version               string `json:"version,omitempty"`
	Executable            string `json:"executable"`
	InstallLocation       string `json:"install_location"`
	InstallDate           string `json:"install_date"` // yyyymmdd
	SizeBytes             int64  `json:"size_bytes"`
	UninstallCommand      string `json:"uninstall_command"`
	QuietUninstallCommand string `json:"quiet_uninstall_command"`
}

// Request describes what to install.
type Request struct {
	// Source is the executable to copy, normally the running one
	Source string
	// Dir is the install directory; DefaultDir(Name) when empty
	Dir string
	// Name defaults to the source's base name without extension
	Name    string
	Version string
}

// Replacer copies an executable into place.
type Replacer interface {
	Replace(ctx context.Context, source, target string) error
}

// Installer installs and uninstalls executables.
type Installer struct {
	recordPath string
	replacer   Replacer
	now        func() time.Time
}

// NewInstaller creates an installer keeping its record in stateDir.
func NewInstaller(stateDir string) *Installer {
	return &Installer{
		recordPath: filepath.Join(stateDir, RecordFile),
		replacer:   update.NewBinaryReplacer(),
		now:        time.Now,
	}
}

// RecordPath returns the path of the install record.
func (i *Installer) RecordPath() string {
	return i.recordPath
}

// DefaultDir returns the per-user program directory:
// %LOCALAPPDATA%\Programs\<name> on Windows, ~/.local/bin elsewhere.
func DefaultDir(name string) (string, error) {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Programs", name), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "bin"), nil
}

// Install copies req.Source into the install directory, overwriting an
// existing copy, and writes the install record.
func (i *Installer) Install(ctx context.Context, req Request) (*Record, error) {
	if req.Source == "" {
		return nil, errors.New("no source executable")
	}

	base := filepath.Base(req.Source)
	name := req.Name
	if name == "" {
		name = base[:len(base)-len(filepath.Ext(base))]
	}

	dir := os.ExpandEnv(req.Dir)
	if dir == "" {
		var err error
		if dir, err = DefaultDir(name); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create install directory: %w", err)
	}

	target := filepath.Join(dir, base)
	if same, _ := sameFile(req.Source, target); !same {
		if err := i.replacer.Replace(ctx, req.Source, target); err != nil {
			return nil, fmt.Errorf("failed to install %s: %w", target, err)
		}
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Name:                  name,
		Version:               req.Version,
		Executable:            target,
		InstallLocation:       dir,
		InstallDate:           i.now().Format("20060102"),
		SizeBytes:             info.Size(),
		UninstallCommand:      fmt.Sprintf("%q uninstall", target),
		QuietUninstallCommand: fmt.Sprintf("%q uninstall --silent", target),
	}
	if err := i.writeRecord(record); err != nil {
		return nil, err
	}

	log.Infof("installed %s %s to %s", name, req.Version, target)
	return record, nil
}

// Uninstall removes the installed executable and the record. A missing
// record returns ErrNotInstalled.
func (i *Installer) Uninstall() (*Record, error) {
	record, err := i.Record()
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	if err := os.Remove(record.Executable); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, fmt.Errorf("remove %s: %w", record.Executable, err))
	}
	if err := os.Remove(i.recordPath); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, fmt.Errorf("remove %s: %w", i.recordPath, err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return record, err
	}
	log.Infof("uninstalled %s from %s", record.Name, record.InstallLocation)
	return record, nil
}

// Record reads the install record.
func (i *Installer) Record() (*Record, error) {
	data, err := os.ReadFile(i.recordPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInstalled
		}
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("invalid install record: %w", err)
	}
	return &record, nil
}

func (i *Installer) writeRecord(record *Record) error {
	if err := os.MkdirAll(filepath.Dir(i.recordPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(i.recordPath), err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := i.recordPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := os.Rename(tmpPath, i.recordPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
