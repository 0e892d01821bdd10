package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/install"
)

func newInstallCmd() *cobra.Command {
	var dir string
	var name string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install swapup into a program directory",
		Long: `Install copies the running executable into the install directory and
records it so uninstall can remove it again.

The directory is --dir, install.dir from the config, or the per-user
program directory (~/.local/bin, %LOCALAPPDATA%\Programs\<name> on Windows).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := NewUpdateService(configPath, appVersion)
			if err != nil {
				return err
			}
			return runInstall(cmd, service, install.Request{Dir: dir, Name: name})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Install directory")
	cmd.Flags().StringVar(&name, "name", "", "Program name")

	return cmd
}

func runInstall(cmd *cobra.Command, service *UpdateService, req install.Request) error {
	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}

	cfg, _, err := service.LoadOptionalConfiguration()
	if err != nil {
		return err
	}
	if req.Dir == "" {
		req.Dir = cfg.Install.Dir
	}
	if req.Name == "" {
		req.Name = cfg.Install.Name
	}
	req.Source = service.executable
	req.Version = service.version

	ctx, cancel := commandContext(cmd)
	defer cancel()

	record, err := install.NewInstaller(cfg.StateDir).Install(ctx, req)
	if err != nil {
		return err
	}

	if writer.Structured() {
		return writer.Write(record)
	}
	if !quiet {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s to %s\n", record.Name, record.Executable)
	}
	return nil
}

func newUninstallCmd() *cobra.Command {
	var silent bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove an installed copy of swapup",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := NewUpdateService(configPath, appVersion)
			if err != nil {
				return err
			}
			return runUninstall(cmd, service, silent)
		},
	}

	cmd.Flags().BoolVar(&silent, "silent", false, "Do not print a confirmation")

	return cmd
}

func runUninstall(cmd *cobra.Command, service *UpdateService, silent bool) error {
	cfg, _, err := service.LoadOptionalConfiguration()
	if err != nil {
		return err
	}

	record, err := install.NewInstaller(cfg.StateDir).Uninstall()
	if errors.Is(err, install.ErrNotInstalled) {
		if !silent {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to uninstall")
		}
		return nil
	}
	if err != nil {
		return err
	}

	if !silent && !quiet {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s successfully\n", record.Name)
	}
	return nil
}
