// Package cmd implements the gocrack command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gocrack/internal/config"
	"github.com/3leaps/gocrack/internal/observability"
	"github.com/3leaps/gocrack/internal/server/handlers"
)

// Exit codes.
const (
	ExitSuccess            = 0
	ExitFailure            = 1
	ExitInvalidArgument    = 2
	ExitConfigInvalid      = 3
	ExitFileReadError      = 4
	ExitServiceUnavailable = 5
	ExitSignalInt          = 130
)

// VersionInfo is the build metadata injected by main.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

var (
	cfgFile  string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "gocrack",
	Short: "Distributed hash cracking coordinator and minions",
	Long: `gocrack brute forces digests across a pool of minions.

A coordinator splits each submitted hash's keyspace into slices, hands
slices to minions on request, and cancels the remaining slices as soon as
one minion reports a match.

Example:
  gocrack serve --slices 8
  gocrack minion --coordinator http://localhost:8000
  gocrack submit hashes.txt
  gocrack status`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./gocrack.yaml or ~/.config/gocrack/gocrack.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// SetVersionInfo records build metadata for the version command and /version.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetBuildInfo(version, commit, buildDate)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
		var ee *ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		fmt.Fprintln(os.Stderr, err)
		return ExitFailure
	}
	return ExitSuccess
}

func initRuntime(cmd *cobra.Command, args []string) error {
	observability.InitCLILogger("gocrack", verbose)
	config.SetConfigFile(cfgFile)
	return nil
}

// loadConfig loads the merged config with command flag overrides applied.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	if logLevel != "" {
		if overrides == nil {
			overrides = map[string]any{}
		}
		overrides["logging"] = map[string]any{"level": logLevel}
	}
	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return nil, exitError(ExitConfigInvalid, "Invalid configuration", err)
	}
	return cfg, nil
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// set adds key=value to overrides under a dotted path when the flag changed.
func set(cmd *cobra.Command, overrides map[string]any, flag, path string, value any) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	m := overrides
	keys := strings.Split(path, ".")
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}
