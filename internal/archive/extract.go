// Package archive unpacks downloaded zip archives into an install directory
// without letting any entry escape it.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/update"
)

// entry is a validated archive member
type entry struct {
	file *zip.File
	name string // slash-normalized name as stored
	path string // absolute destination
	dir  bool
}

// Extract unpacks the zip at archivePath into targetDir.
//
// Every entry is validated before anything is written, so an archive with a
// single escaping entry leaves the target untouched. Failures while writing
// abort at the first error; files written before it stay in place.
func Extract(ctx context.Context, archivePath, targetDir string, sink update.ProgressSink) error {
	r, err := zip.OpenReader(archivePath)
	switch {
	case errors.Is(err, zip.ErrInsecurePath):
		if r != nil {
			_ = r.Close()
		}
		return update.NewError(update.KindPathTraversal, "extract", err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return update.NewError(update.KindIO, "extract", err)
	case err != nil:
		return update.NewError(update.KindCorruptArchive, "extract", err)
	}
	defer func() { _ = r.Close() }()

	root, err := filepath.Abs(targetDir)
	if err != nil {
		return update.NewError(update.KindIO, "extract", err)
	}

	entries, err := plan(r.File, root)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return update.NewError(update.KindIO, "extract", err)
	}

	total := int64(len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if e.dir {
			if err := os.MkdirAll(e.path, 0755); err != nil {
				return update.NewError(update.KindIO, "extract", fmt.Errorf("failed to create directory %s: %w", e.path, err))
			}
		} else if err := writeFile(e); err != nil {
			return err
		}

		sink.ReportPercent(fmt.Sprintf("Extracted %s", e.name), int(int64(i+1)*100/total))
	}

	log.Infof("extracted %d entries from %s into %s", len(entries), archivePath, root)
	return nil
}

// plan validates all entries and resolves their destinations.
func plan(files []*zip.File, root string) ([]entry, error) {
	entries := make([]entry, 0, len(files))
	for _, f := range files {
		name := strings.ReplaceAll(f.Name, `\`, "/")

		if f.Mode()&os.ModeSymlink != 0 {
			return nil, update.Errorf(update.KindPathTraversal, "extract", "symlink entry %q", f.Name)
		}

		dir := strings.HasSuffix(name, "/") || f.FileInfo().IsDir()
		if dir && f.UncompressedSize64 != 0 {
			return nil, update.Errorf(update.KindCorruptArchive, "extract",
				"directory entry %q declares %d bytes of data", f.Name, f.UncompressedSize64)
		}

		path, err := ResolveWithin(root, name)
		if err != nil {
			return nil, err
		}
		if path == root {
			if !dir {
				return nil, update.Errorf(update.KindPathTraversal, "extract", "entry %q resolves to the target directory", f.Name)
			}
			continue
		}

		entries = append(entries, entry{file: f, name: name, path: path, dir: dir})
	}
	return entries, nil
}

// ResolveWithin joins name onto root and fails with ErrPathTraversal unless
// the result lies inside root. root must be absolute and clean.
func ResolveWithin(root, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.VolumeName(name) != "" || filepath.IsAbs(name) {
		return "", update.Errorf(update.KindPathTraversal, "extract", "absolute entry name %q", name)
	}

	full := filepath.Join(root, filepath.FromSlash(slashed))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", update.Errorf(update.KindPathTraversal, "extract", "entry %q escapes %s", name, root)
	}
	return full, nil
}

func writeFile(e entry) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return update.NewError(update.KindIO, "extract", fmt.Errorf("failed to create directory for %s: %w", e.path, err))
	}

	rc, err := e.file.Open()
	if err != nil {
		return update.NewError(update.KindCorruptArchive, "extract", fmt.Errorf("failed to open %s in archive: %w", e.name, err))
	}
	defer func() { _ = rc.Close() }()

	mode := e.file.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return update.NewError(update.KindIO, "extract", fmt.Errorf("failed to create file %s: %w", e.path, err))
	}

	_, err = io.Copy(&writerOnly{out}, rc)
	cerr := out.Close()

	var werr *writeError
	switch {
	case errors.As(err, &werr):
		return update.NewError(update.KindIO, "extract", fmt.Errorf("failed to write file %s: %w", e.path, werr.err))
	case err != nil:
		return update.NewError(update.KindCorruptArchive, "extract", fmt.Errorf("failed to read %s from archive: %w", e.name, err))
	case cerr != nil:
		return update.NewError(update.KindIO, "extract", fmt.Errorf("failed to close file %s: %w", e.path, cerr))
	}
	return nil
}

// writerOnly tags write failures so they can be told apart from
// decompression failures after io.Copy.
type writerOnly struct {
	w io.Writer
}

type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }

func (w *writerOnly) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		return n, &writeError{err}
	}
	return n, nil
}
