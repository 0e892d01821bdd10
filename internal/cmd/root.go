package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/logging"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	verbose      bool
	quiet        bool
	logLevel     string
	logFile      string

	// Build information, set by Execute
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

func Execute(version, commit, date string) error {
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	appVersion, appCommit, appDate = version, commit, date

	rootCmd := &cobra.Command{
		Use:   "swapup",
		Short: "Safe self-update for executables and zip releases",
		Long: `swapup checks a release feed, downloads the newest asset and applies it.

An executable replaces itself by relaunching the download, which waits for
the old process to exit before overwriting it. A zip release is extracted
into its target directory in place.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to swapup config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", logging.Console, "Log file path, or console for stderr")

	// Add subcommands
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newApplyUpdateCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newUninstallCmd())
	rootCmd.AddCommand(newResultCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// initLogging applies --log-level and --log-file. --verbose and --quiet
// adjust the level unless it was set explicitly.
func initLogging(cmd *cobra.Command) error {
	level := logLevel
	if !cmd.Flags().Changed("log-level") {
		switch {
		case verbose:
			level = "debug"
		case quiet:
			level = "error"
		}
	}
	return logging.InitLog(level, logFile)
}
