package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/gocrack/internal/config"
	"github.com/3leaps/gocrack/pkg/client"
)

// Output formats shared by the read-only commands.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatJSONL = "jsonl"
)

// addClientFlags registers --coordinator and --output on a command talking
// to a running coordinator.
func addClientFlags(cmd *cobra.Command, coordinatorURL, format *string) {
	cmd.Flags().StringVarP(coordinatorURL, "coordinator", "c", "", "Coordinator URL (default from config: http://localhost:8000)")
	if format != nil {
		cmd.Flags().StringVarP(format, "output", "o", FormatTable, "Output format (table, json, yaml, jsonl)")
	}
}

// newClient loads config and builds a client for the coordinator.
func newClient(cmd *cobra.Command, coordinatorURL string) (*client.Client, *config.Config, error) {
	o := map[string]any{}
	set(cmd, o, "coordinator", "minion.coordinator_url", coordinatorURL)
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(cfg.Minion.CoordinatorURL, client.WithTimeout(cfg.Minion.RequestTimeout))
	if err != nil {
		return nil, nil, exitError(ExitInvalidArgument, "Invalid coordinator URL", err)
	}
	return c, cfg, nil
}

func validateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatJSONL:
		return nil
	}
	return exitError(ExitInvalidArgument, "Invalid --output value",
		fmt.Errorf("unsupported format %q (table, json, yaml, jsonl)", format))
}

// encode writes v as indented JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// clientError maps a coordinator call failure onto an exit code.
func clientError(message string, err error) error {
	code := ExitFailure
	switch {
	case errors.Is(err, client.ErrTransport):
		code = ExitServiceUnavailable
	case errors.Is(err, client.ErrRejected):
		code = ExitInvalidArgument
	}
	return exitError(code, message, err)
}
