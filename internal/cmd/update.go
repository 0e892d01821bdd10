package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/interactive"
	"github.com/adamancini/swapup/internal/lifecycle"
	"github.com/adamancini/swapup/internal/output"
	"github.com/adamancini/swapup/internal/update"
)

// UpdateOptions configures the update command.
type UpdateOptions struct {
	Yes         bool // install without asking
	Interactive bool // stdin is a terminal
	Inline      bool // progress can be redrawn in place
}

func newUpdateCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and apply the latest release",
		Long: `Update checks the feed and, when a newer release is offered, downloads it
and applies it.

An executable is applied by relaunching the download, which replaces this
program once it has exited and then starts it again. A zip release is
extracted into the configured target directory.

Without --yes, update asks for confirmation on a terminal and only reports
the available version otherwise.

Examples:
  swapup update
  swapup update --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := NewUpdateService(configPath, appVersion)
			if err != nil {
				return err
			}
			return runUpdate(cmd, service, UpdateOptions{
				Yes:         yes,
				Interactive: interactive.IsTerminal(),
				Inline:      interactive.IsOutputTerminal(),
			}, interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Install without asking for confirmation")

	return cmd
}

func runUpdate(cmd *cobra.Command, service *UpdateService, opts UpdateOptions, prompter *interactive.Prompter) error {
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

	service.CleanupLeftovers(cfg)

	lc, err := service.Lifecycle(cfg, cfgPath)
	if err != nil {
		return err
	}

	var sink update.ProgressSink
	var progress *output.Progress
	if !writer.Structured() && !quiet {
		progress = output.NewProgress(cmd.ErrOrStderr(), opts.Inline)
		sink = progress.Sink()
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := lc.Run(ctx, sink, confirmFunc(cmd.ErrOrStderr(), writer, opts, prompter))
	if progress != nil {
		progress.Done()
	}

	if err := writer.Write(newReport(out)); err != nil {
		return err
	}
	if out.Kind == lifecycle.OutcomeFailed {
		return errUpdateFailed
	}
	return nil
}

// confirmFunc decides how an available update is approved: --yes accepts,
// a terminal asks, anything else only reports.
func confirmFunc(stderr io.Writer, writer *output.Writer, opts UpdateOptions, prompter *interactive.Prompter) lifecycle.ConfirmFunc {
	if opts.Yes {
		return nil
	}
	return func(out lifecycle.Outcome) bool {
		if writer.Structured() || !opts.Interactive || prompter == nil {
			if !writer.Structured() {
				_, _ = fmt.Fprintf(stderr, "Run 'swapup update --yes' to install %s\n", out.CandidateTag())
			}
			return false
		}
		return prompter.ConfirmUpdate(out.CandidateTag())
	}
}
