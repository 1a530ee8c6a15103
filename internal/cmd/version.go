package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the build version. With --remote, also ask the coordinator for its
version.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var (
	versionRemote      bool
	versionCoordinator string
	versionFormat      string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	addClientFlags(versionCmd, &versionCoordinator, &versionFormat)
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "Also query the coordinator")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if err := validateFormat(versionFormat); err != nil {
		return err
	}

	report := struct {
		Client      VersionInfo  `json:"client" yaml:"client"`
		GoVersion   string       `json:"go_version" yaml:"go_version"`
		Coordinator *VersionInfo `json:"coordinator,omitempty" yaml:"coordinator,omitempty"`
	}{Client: versionInfo, GoVersion: runtime.Version()}

	if versionRemote {
		c, _, err := newClient(cmd, versionCoordinator)
		if err != nil {
			return err
		}
		remote, err := c.Version(cmd.Context())
		if err != nil {
			return clientError("Failed to query coordinator version", err)
		}
		report.Coordinator = &VersionInfo{Version: remote.Version, Commit: remote.Commit, BuildDate: remote.BuildDate}
	}

	out := cmd.OutOrStdout()
	if versionFormat == FormatJSON || versionFormat == FormatYAML || versionFormat == FormatJSONL {
		format := versionFormat
		if format == FormatJSONL {
			format = FormatJSON
		}
		return encode(out, format, report)
	}

	_, _ = fmt.Fprintf(out, "gocrack %s (commit %s, built %s, %s)\n",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate, report.GoVersion)
	if report.Coordinator != nil {
		_, _ = fmt.Fprintf(out, "coordinator %s (commit %s, built %s)\n",
			report.Coordinator.Version, report.Coordinator.Commit, report.Coordinator.BuildDate)
	}
	return nil
}
