package cmd

import (
	"context"
	"fmt"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gocrack/internal/config"
	"github.com/3leaps/gocrack/internal/observability"
	"github.com/3leaps/gocrack/pkg/client"
	"github.com/3leaps/gocrack/pkg/digest"
	"github.com/3leaps/gocrack/pkg/keyspace"
)

var (
	doctorCoordinator string
	doctorS3          bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the local setup and suggest fixes for common issues.

Examples:
  gocrack doctor              # Config, keyspace and coordinator checks
  gocrack doctor --s3         # Also check AWS credentials for s3:// sources`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	addClientFlags(doctorCmd, &doctorCoordinator, nil)
	doctorCmd.Flags().BoolVar(&doctorS3, "s3", false, "Check AWS credentials for s3:// hash sources")
}

type doctorCheck struct {
	name string
	run  func(ctx context.Context, cfg *config.Config) (string, error)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	log := observability.CLILogger
	log.Info("=== gocrack doctor ===")
	log.Info("")

	o := map[string]any{}
	set(cmd, o, "coordinator", "minion.coordinator_url", doctorCoordinator)
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		log.Error("[1] Loading configuration... ❌", zap.Error(err))
		return err
	}

	checks := []doctorCheck{
		{"Go version", checkGoVersion},
		{"Configuration", func(context.Context, *config.Config) (string, error) { return "loaded", nil }},
		{"Keyspace", checkKeyspace},
		{"Digest algorithm", checkDigest},
		{"Coordinator", checkCoordinator},
	}
	if doctorS3 {
		checks = append(checks, doctorCheck{"AWS credentials", checkAWSCredentials})
	}

	failed := 0
	for i, c := range checks {
		detail, err := c.run(cmd.Context(), cfg)
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		if err != nil {
			failed++
			log.Error(prefix+" ❌", zap.Error(err))
			if c.name == "AWS credentials" {
				printAWSCredentialsHelp()
			}
			continue
		}
		log.Info(prefix + " ✅ " + detail)
	}

	log.Info("")
	if failed > 0 {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(ExitFailure, "Diagnostics failed", fmt.Errorf("%d of %d checks failed", failed, len(checks)))
	}
	log.Info("✅ All checks passed!")
	return nil
}

func checkGoVersion(context.Context, *config.Config) (string, error) {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
}

func checkKeyspace(_ context.Context, cfg *config.Config) (string, error) {
	enc, err := keyspace.Resolve(cfg.Keyspace.Name, cfg.Keyspace.File)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, %d candidates (%s .. %s)", cfg.Keyspace.Name, keyspace.Size(enc),
		enc.Encode(enc.MinValue()), enc.Encode(enc.MaxValue())), nil
}

func checkDigest(_ context.Context, cfg *config.Config) (string, error) {
	algo, err := digest.Lookup(cfg.Digest.Algorithm)
	if err != nil {
		return "", err
	}
	return algo.Name(), nil
}

func checkCoordinator(ctx context.Context, cfg *config.Config) (string, error) {
	c, err := client.New(cfg.Minion.CoordinatorURL, client.WithTimeout(cfg.Minion.RequestTimeout))
	if err != nil {
		return "", err
	}
	v, err := c.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.BaseURL(), err)
	}
	return fmt.Sprintf("%s reachable (version %s)", c.BaseURL(), v.Version), nil
}

func checkAWSCredentials(ctx context.Context, cfg *config.Config) (string, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.S3.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieve credentials: %w", err)
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s from %s", maskAccessKey(creds.AccessKeyID), source), nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - s3.endpoint in the config file or --s3-endpoint on submit")
	observability.CLILogger.Info("")
}
