package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	defer func() { SetVersionInfo(orig.Version, orig.Commit, orig.BuildDate) }()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := exitError(ExitServiceUnavailable, "Coordinator failed", base)

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitServiceUnavailable, ee.Code)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "Coordinator failed: boom (exit code 5)", err.Error())
}

func TestSetOverrides(t *testing.T) {
	var port int
	var host string
	c := &cobra.Command{Use: "x"}
	c.Flags().IntVar(&port, "port", 0, "")
	c.Flags().StringVar(&host, "host", "", "")
	require.NoError(t, c.Flags().Parse([]string{"--port", "9000"}))

	o := map[string]any{}
	set(c, o, "port", "server.port", port)
	set(c, o, "host", "server.host", host)

	assert.Equal(t, map[string]any{"server": map[string]any{"port": 9000}}, o)
}
