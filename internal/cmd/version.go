package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo is the build information printed by version.
type VersionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Platform string `json:"platform" yaml:"platform"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("swapup version %s (commit %s, built %s, %s)", v.Version, v.Commit, v.Date, v.Platform)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the swapup build version.

Use 'swapup check' to look for a newer release.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			writer, err := newWriter(cmd)
			if err != nil {
				return err
			}
			return writer.Write(VersionInfo{
				Version:  appVersion,
				Commit:   appCommit,
				Date:     appDate,
				Platform: runtime.GOOS + "/" + runtime.GOARCH,
			})
		},
	}
}
