package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/lifecycle"
	"github.com/adamancini/swapup/internal/output"
	"github.com/adamancini/swapup/internal/update"
)

func newApplyUpdateCmd() *cobra.Command {
	var target string
	var launch bool
	var release string

	cmd := &cobra.Command{
		Use:   "apply-update",
		Short: "Replace the installed executable with this one",
		Long: `Apply-update runs inside a downloaded executable. It waits for running
copies of the target to exit, overwrites the target with itself and, with
--launch, starts the target again to remove the download.

update runs this for you; it is rarely needed by hand.

Without --target the target is this executable's path with the ".update"
infix removed, e.g. tool.update.exe applies to tool.exe.`,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := NewUpdateService(configPath, appVersion)
			if err != nil {
				return err
			}
			return runApplyUpdate(cmd, service, lifecycle.ApplyRequest{
				Target:  target,
				Launch:  launch,
				Version: release,
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Executable to replace")
	cmd.Flags().BoolVar(&launch, "launch", false, "Start the target after replacing it")
	cmd.Flags().StringVar(&release, "release", "", "Release being applied, recorded in the apply result")

	return cmd
}

func runApplyUpdate(cmd *cobra.Command, service *UpdateService, req lifecycle.ApplyRequest) error {
	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}

	req.Artifact = service.executable
	if req.Target == "" {
		target, ok := update.DefaultApplyTarget(req.Artifact)
		if !ok {
			return fmt.Errorf("cannot derive target from %s, pass --target", req.Artifact)
		}
		req.Target = target
	}

	cfg, cfgPath, err := service.LoadOptionalConfiguration()
	if err != nil {
		return err
	}
	if err := applyLogConfig(cmd, cfg); err != nil {
		return err
	}

	lc, err := service.Lifecycle(cfg, cfgPath)
	if err != nil {
		return err
	}

	var sink update.ProgressSink
	if !writer.Structured() && !quiet {
		sink = output.NewProgress(cmd.ErrOrStderr(), false).Sink()
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := lc.Apply(ctx, req, sink)
	report := newReport(out)
	report.Latest = req.Version
	if err := writer.Write(report); err != nil {
		return err
	}
	if out.Kind == lifecycle.OutcomeFailed {
		return errUpdateFailed
	}
	return nil
}
