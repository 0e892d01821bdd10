package artifact

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultKeepCount is the default number of finished artifacts to retain.
	DefaultKeepCount = 3
	// DefaultPartialAge is how old a partial download must be before it is
	// considered abandoned.
	DefaultPartialAge = time.Hour
)

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []Info
	Kept    int
}

// Prune removes old artifacts, keeping only the most recent keep finished
// ones, and removes partial downloads older than partialAge. Partial files
// younger than that may belong to a transfer in progress and are left alone.
// Deletion failures are collected; the rest of the pass still runs.
func (m *Manager) Prune(keep int, partialAge time.Duration, now time.Time) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	artifacts, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	var errs *multierror.Error

	finished := 0
	for _, a := range artifacts {
		if a.Partial {
			if now.Sub(a.ModifiedAt) < partialAge {
				continue
			}
		} else {
			// Artifacts are sorted newest first
			finished++
			if finished <= keep {
				result.Kept++
				continue
			}
		}

		if err := m.Delete(a.Name); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to delete artifact %s: %w", a.Name, err))
			continue
		}
		result.Deleted = append(result.Deleted, a)
	}

	return result, errs.ErrorOrNil()
}
