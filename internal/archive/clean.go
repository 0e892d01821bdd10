package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/swapup/internal/update"
)

// CleanPaths removes the given paths, relative to targetDir, ahead of an
// extraction so files dropped by the new release do not linger. All paths
// are validated first; none is removed if any escapes targetDir.
func CleanPaths(targetDir string, paths []string) error {
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return update.NewError(update.KindIO, "clean", err)
	}

	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		full, err := ResolveWithin(root, p)
		if err != nil {
			return err
		}
		if full == root {
			return update.Errorf(update.KindPathTraversal, "clean", "refusing to remove the target directory itself")
		}
		resolved = append(resolved, full)
	}

	var result *multierror.Error
	for _, full := range resolved {
		if err := os.RemoveAll(full); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", full, err))
			continue
		}
		log.Debugf("removed %s", full)
	}

	if err := result.ErrorOrNil(); err != nil {
		return update.NewError(update.KindIO, "clean", err)
	}
	return nil
}
