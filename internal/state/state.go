// Package state detects the currently installed version of the program
// being updated.
package state

import (
	"context"
	"errors"
)

// ErrNotInstalled means there is no installation to compare against.
// Any candidate is then offered.
var ErrNotInstalled = errors.New("not installed")

// Reader defines the interface for reading the installed version.
// The returned string is parsed by the caller.
type Reader interface {
	InstalledVersion(ctx context.Context) (string, error)
}

// Static reports a fixed version, usually the one compiled into the binary.
type Static string

// InstalledVersion implements Reader.
func (s Static) InstalledVersion(context.Context) (string, error) {
	if s == "" {
		return "", ErrNotInstalled
	}
	return string(s), nil
}
