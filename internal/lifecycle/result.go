package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ResultFile is the name of the apply result inside the state directory.
const ResultFile = "result.json"

// ApplyResult is written by the applying process so the next run, or a
// watcher, can learn how the apply went.
type ApplyResult struct {
	Success    bool      `json:"success" yaml:"success"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	Version    string    `json:"version,omitempty" yaml:"version,omitempty"`
	Artifact   string    `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Target     string    `json:"target,omitempty" yaml:"target,omitempty"`
	ExecutedAt time.Time `json:"executed_at" yaml:"executed_at"`
}

// ResultHandler handles reading and writing apply results
type ResultHandler struct {
	resultFile string
}

// NewResultHandler creates a handler for "result.json" in dir.
func NewResultHandler(dir string) *ResultHandler {
	return &ResultHandler{
		resultFile: filepath.Join(dir, ResultFile),
	}
}

// Path returns the result file path
func (rh *ResultHandler) Path() string {
	return rh.resultFile
}

// Write stores the result atomically: a reader sees the old file, no file,
// or the complete new one.
func (rh *ResultHandler) Write(result ApplyResult) error {
	log.Infof("write out apply result to: %s", rh.resultFile)

	dir := filepath.Dir(rh.resultFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temporary file first, then rename for atomic operation
	tmpPath := rh.resultFile + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := os.Rename(tmpPath, rh.resultFile); err != nil {
		if cleanupErr := os.Remove(tmpPath); cleanupErr != nil {
			log.Warnf("failed to remove temp result file: %v", cleanupErr)
		}
		return err
	}

	return nil
}

// Read returns the stored result. A missing file is reported as
// os.ErrNotExist.
func (rh *ResultHandler) Read() (ApplyResult, error) {
	data, err := os.ReadFile(rh.resultFile)
	if err != nil {
		return ApplyResult{}, err
	}

	var result ApplyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ApplyResult{}, fmt.Errorf("invalid result format: %w", err)
	}

	return result, nil
}

// Watch returns the result as soon as it exists, waiting for it to be
// written if necessary. The wait is bounded by ctx.
func (rh *ResultHandler) Watch(ctx context.Context) (ApplyResult, error) {
	log.Debugf("start watching result: %s", rh.resultFile)

	dir := filepath.Dir(rh.resultFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ApplyResult{}, err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warnf("failed to close watcher: %v", err)
		}
	}()

	// Watch the directory (not the file, since it may not exist yet)
	if err := watcher.Add(dir); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to watch directory: %w", err)
	}

	// Check after the watch is in place so a write in between is not missed.
	if result, err := rh.Read(); err == nil {
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return ApplyResult{}, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return ApplyResult{}, errors.New("watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != filepath.Clean(rh.resultFile) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				result, err := rh.Read()
				if err != nil {
					log.Debugf("error while reading result: %v", err)
					continue
				}
				return result, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ApplyResult{}, errors.New("watcher closed unexpectedly")
			}
			return ApplyResult{}, fmt.Errorf("watcher error: %w", err)
		}
	}
}

// Cleanup removes the result file if it exists
func (rh *ResultHandler) Cleanup() error {
	err := os.Remove(rh.resultFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	log.Debugf("delete apply result file: %s", rh.resultFile)
	return nil
}
