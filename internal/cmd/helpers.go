package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/config"
	"github.com/adamancini/swapup/internal/output"
)

// commandContext is cancelled on interrupt so downloads stop cleanly.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

// currentExecutable returns the running executable with symlinks resolved.
func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// newWriter returns a writer for the --output format.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewWriter(cmd.OutOrStdout(), format), nil
}

// relaunchArgs are the global flags a relaunched process needs to see the
// same config and log file.
func relaunchArgs(cfgPath string) []string {
	var args []string
	if cfgPath != "" {
		if abs, err := filepath.Abs(cfgPath); err == nil {
			cfgPath = abs
		}
		args = append(args, "--config", cfgPath)
	}
	if logFile != "" {
		args = append(args, "--log-file", logFile)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	return args
}

// applyLogConfig re-initializes logging from the config file for settings
// not given on the command line.
func applyLogConfig(cmd *cobra.Command, cfg *config.Config) error {
	level, file := "", ""
	if cfg.Log.Level != "" && !cmd.Flags().Changed("log-level") && !verbose && !quiet {
		level = cfg.Log.Level
	}
	if cfg.Log.File != "" && !cmd.Flags().Changed("log-file") {
		file = cfg.Log.File
	}
	if level == "" && file == "" {
		return nil
	}

	if level != "" {
		logLevel = level
	}
	if file != "" {
		logFile = file
	}
	return initLogging(cmd)
}

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}
