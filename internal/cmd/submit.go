package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gocrack/internal/observability"
	"github.com/3leaps/gocrack/pkg/client"
	"github.com/3leaps/gocrack/pkg/hashsource"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

var submitCmd = &cobra.Command{
	Use:   "submit <source>...",
	Short: "Submit hash lists to the coordinator",
	Long: `Submit one or more hash lists, one hex digest per line.

A source is a file path, a glob such as "hashes/**/*.txt", "-" for
standard input, or an object URI "s3://bucket/key". Each source is
uploaded as its own batch; the coordinator validates a whole batch before
creating any task.

With --wait the command polls the coordinator until every submitted hash
is settled and prints the results.

Example:
  gocrack submit hashes.txt
  gocrack submit 'batches/**/*.txt' --wait
  cat hashes.txt | gocrack submit -
  gocrack submit s3://my-bucket/hashes/today.txt --s3-region eu-west-1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

var (
	submitCoordinator string
	submitWait        bool
	submitInterval    time.Duration
	submitTimeout     time.Duration
	submitS3Region    string
	submitS3Endpoint  string
	submitS3Profile   string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	addClientFlags(submitCmd, &submitCoordinator, nil)
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait until every submitted hash is settled")
	submitCmd.Flags().DurationVar(&submitInterval, "interval", 2*time.Second, "Polling interval for --wait")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 0, "Give up waiting after this long (0 = no limit)")
	submitCmd.Flags().StringVar(&submitS3Region, "s3-region", "", "Region for s3:// sources")
	submitCmd.Flags().StringVar(&submitS3Endpoint, "s3-endpoint", "", "Endpoint for S3-compatible stores")
	submitCmd.Flags().StringVar(&submitS3Profile, "s3-profile", "", "AWS profile for s3:// sources")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, cfg, err := newClient(cmd, submitCoordinator)
	if err != nil {
		return err
	}

	s3cfg := cfg.S3
	if submitS3Region != "" {
		s3cfg.Region = submitS3Region
	}
	if submitS3Endpoint != "" {
		s3cfg.Endpoint = submitS3Endpoint
		s3cfg.ForcePathStyle = true
	}
	if submitS3Profile != "" {
		s3cfg.Profile = submitS3Profile
	}

	var submitted []string
	for _, src := range args {
		hashes, err := submitSource(ctx, c, src, hashsource.WithS3Config(s3cfg), hashsource.WithStdin(cmd.InOrStdin()))
		if err != nil {
			return err
		}
		submitted = append(submitted, hashes...)
	}

	if !submitWait {
		return nil
	}
	return waitForHashes(ctx, c, submitted, cmd.OutOrStdout())
}

func submitSource(ctx context.Context, c *client.Client, src string, opts ...hashsource.Option) ([]string, error) {
	r, err := hashsource.Open(ctx, src, opts...)
	if err != nil {
		return nil, exitError(ExitFileReadError, "Failed to open hash source", err)
	}
	defer func() { _ = r.Close() }()

	resp, err := c.UploadHashes(ctx, uploadName(src), r)
	if err != nil {
		return nil, clientError(fmt.Sprintf("Failed to submit %s", src), err)
	}
	observability.CLILogger.Info("Hashes submitted",
		zap.String("source", src),
		zap.Int("hashes", len(resp.Hashes)),
		zap.Int("tasks", resp.Tasks),
		zap.Int("slices", resp.Slices))
	return resp.Hashes, nil
}

// uploadName keeps the source's base name when it is a .txt file, which
// the coordinator requires for multipart uploads.
func uploadName(src string) string {
	name := hashsource.Name(src)
	if hashsource.IsGlob(src) || !strings.HasSuffix(strings.ToLower(name), ".txt") {
		return "hashes.txt"
	}
	return name
}

// waitForHashes polls the coordinator until every hash is settled, then
// prints one line per hash.
func waitForHashes(ctx context.Context, c *client.Client, hashes []string, out io.Writer) error {
	if submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, submitTimeout)
		defer cancel()
	}

	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}

	limiter := rate.NewLimiter(rate.Every(submitInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return exitError(ExitSignalInt, "Stopped waiting for results", err)
		}
		snap, err := c.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return exitError(ExitSignalInt, "Stopped waiting for results", ctx.Err())
			}
			observability.CLILogger.Warn("Status poll failed", zap.Error(err))
			continue
		}

		results := map[string]taskstore.HashSummary{}
		pending := 0
		for _, h := range snap.Hashes {
			if !want[h.HashValue] {
				continue
			}
			results[h.HashValue] = h
			if !h.Done() {
				pending++
			}
		}
		if pending > 0 || len(results) < len(want) {
			observability.CLILogger.Debug("Waiting for results", zap.Int("unsettled", pending))
			continue
		}

		for _, h := range hashes {
			r := results[h]
			if r.Result == "" {
				_, _ = fmt.Fprintf(out, "%s\t(not found)\n", h)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", h, r.Result)
		}
		return nil
	}
}
