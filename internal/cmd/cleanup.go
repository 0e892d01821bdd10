package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove a downloaded executable after an update",
		Long: `Cleanup waits for the process running the downloaded executable to exit
and deletes it. A relaunched target runs this after apply-update.

Failures are logged and never fail the command.`,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := NewUpdateService(configPath, appVersion)
			if err != nil {
				return err
			}
			return runCleanup(cmd, service, target)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Downloaded executable to remove")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runCleanup(cmd *cobra.Command, service *UpdateService, artifactPath string) error {
	cfg, cfgPath, err := service.LoadOptionalConfiguration()
	if err != nil {
		log.Warnf("cleanup without config: %v", err)
		cfg, cfgPath = defaultConfig(), ""
	} else if err := applyLogConfig(cmd, cfg); err != nil {
		log.Warn(err)
	}

	lc, err := service.Lifecycle(cfg, cfgPath)
	if err != nil {
		log.Warnf("cleanup skipped: %v", err)
		return nil
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	// Errors are already logged by the lifecycle.
	_ = lc.Cleanup(ctx, artifactPath)
	return nil
}
