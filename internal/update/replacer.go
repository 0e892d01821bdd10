package update

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultHealthTimeout bounds the health check of a new binary
const DefaultHealthTimeout = 5 * time.Second

// BinaryReplacer overwrites an installed executable with a new one.
// There is no rollback: a failed replace leaves the target untouched,
// a successful one is final.
type BinaryReplacer struct {
	// HealthCheck runs the new binary before the target is touched
	HealthCheck   bool
	HealthArgs    []string
	HealthTimeout time.Duration
}

// NewBinaryReplacer creates a replacer without health check
func NewBinaryReplacer() *BinaryReplacer {
	return &BinaryReplacer{
		HealthArgs:    []string{"version"},
		HealthTimeout: DefaultHealthTimeout,
	}
}

// Replace copies source over target.
//
// The copy is written to a sibling of target and renamed onto it, so the
// target is either the old or the new file. A target that is in use and
// cannot be replaced surfaces as ErrApplyFailed; it is not retried.
func (r *BinaryReplacer) Replace(ctx context.Context, source, target string) error {
	if r.HealthCheck {
		if err := r.VerifyBinary(ctx, source); err != nil {
			return NewError(KindApplyFailed, "replace", fmt.Errorf("new binary verification failed: %w", err))
		}
	}

	mode := os.FileMode(0755)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm() | 0111
	}

	tmp := filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), uuid.NewString()))
	if err := copyFile(source, tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return NewError(KindIO, "replace", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return NewError(KindApplyFailed, "replace", fmt.Errorf("failed to replace %s: %w", target, err))
	}

	// Rename keeps tmp's mode; chmod again in case umask stripped bits.
	if err := os.Chmod(target, mode); err != nil {
		log.Warnf("failed to set permissions on %s: %v", target, err)
	}

	log.Infof("replaced %s with %s", target, source)
	return nil
}

// VerifyBinary runs the binary with HealthArgs and expects a zero exit
// status within HealthTimeout.
func (r *BinaryReplacer) VerifyBinary(ctx context.Context, path string) error {
	timeout := r.HealthTimeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, r.HealthArgs...)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Debugf("health check output of %s: %s", path, out)
		return fmt.Errorf("binary verification failed: %w", err)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	return out.Close()
}
