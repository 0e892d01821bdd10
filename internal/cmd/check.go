package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/lifecycle"
)

// errUpdateFailed is returned after a failure has already been printed.
var errUpdateFailed = errors.New("update failed")

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the release feed for an update",
		Long: `Check reads the installed version and the release feed and reports whether
an update would be offered. Nothing is downloaded.

Examples:
  swapup check
  swapup check -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
	}
}

func runCheck(cmd *cobra.Command) error {
	service, err := NewUpdateService(configPath, appVersion)
	if err != nil {
		return err
	}
	return runCheckWithService(cmd, service)
}

func runCheckWithService(cmd *cobra.Command, service *UpdateService) error {
	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}

	cfg, cfgPath, err := service.LoadConfiguration()
	if err != nil {
		return err
	}
	if err := applyLogConfig(cmd, cfg); err != nil {
		return err
	}
	if verbose {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using config: %s\n", cfgPath)
	}

	lc, err := service.Lifecycle(cfg, cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := lc.Check(ctx)
	if err := writer.Write(newReport(out)); err != nil {
		return err
	}
	if out.Kind == lifecycle.OutcomeFailed {
		return errUpdateFailed
	}
	return nil
}
