package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/lifecycle"
)

// ResultReport is the printable apply result.
type ResultReport struct {
	lifecycle.ApplyResult `yaml:",inline"`
}

func (r ResultReport) String() string {
	status := "succeeded"
	if !r.Success {
		status = "failed: " + r.Error
	}
	s := fmt.Sprintf("Last update %s", status)
	if r.Version != "" {
		s += fmt.Sprintf("\nVersion:  %s", r.Version)
	}
	if r.Target != "" {
		s += fmt.Sprintf("\nTarget:   %s", r.Target)
	}
	if !r.ExecutedAt.IsZero() {
		s += fmt.Sprintf("\nApplied:  %s", r.ExecutedAt.Local().Format(time.RFC1123))
	}
	return s
}

func newResultCmd() *cobra.Command {
	var watch bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the result of the last apply",
		Long: `Result prints the outcome the last apply-update recorded. With --watch it
waits until a result is written, up to --timeout.

Examples:
  swapup result
  swapup result --watch --timeout 1m -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := NewUpdateService(configPath, appVersion)
			if err != nil {
				return err
			}
			return runResult(cmd, service, watch, timeout)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Wait for a result to be written")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long --watch waits")

	return cmd
}

func runResult(cmd *cobra.Command, service *UpdateService, watch bool, timeout time.Duration) error {
	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}

	cfg, _, err := service.LoadOptionalConfiguration()
	if err != nil {
		return err
	}
	results := lifecycle.NewResultHandler(cfg.StateDir)

	var result lifecycle.ApplyResult
	if watch {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
		defer cancelTimeout()

		result, err = results.Watch(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no apply result within %s", timeout)
		}
	} else {
		result, err = results.Read()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no apply result recorded in %s", results.Path())
		}
	}
	if err != nil {
		return err
	}

	if err := writer.Write(ResultReport{result}); err != nil {
		return err
	}
	if !result.Success {
		return errUpdateFailed
	}
	return nil
}
