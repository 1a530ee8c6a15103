package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gocrack/internal/observability"
	"github.com/3leaps/gocrack/internal/server"
	"github.com/3leaps/gocrack/pkg/client"
	"github.com/3leaps/gocrack/pkg/keyspace"
	"github.com/3leaps/gocrack/pkg/worker"
)

var minionCmd = &cobra.Command{
	Use:   "minion",
	Short: "Run a minion that cracks slices for a coordinator",
	Long: `Run a minion worker.

The minion registers with the coordinator, sends heartbeats, claims one
slice at a time and brute forces it. Every --poll-interval candidates it
asks the coordinator whether the slice is still assigned and stops early
when another minion already found the answer. On shutdown it disconnects
so its slice is requeued.

Example:
  gocrack minion
  gocrack minion --coordinator http://10.0.0.5:8000 --id m1
  gocrack minion --metrics-port 9101`,
	RunE: runMinion,
}

var (
	minionCoordinator  string
	minionID           string
	minionHost         string
	minionPort         int
	minionKeyspace     string
	minionKeyspaceFile string
	minionPoll         int
	minionHeartbeat    time.Duration
	minionRetryDelay   time.Duration
	minionMetricsPort  int
)

func init() {
	rootCmd.AddCommand(minionCmd)

	minionCmd.Flags().StringVarP(&minionCoordinator, "coordinator", "c", "", "Coordinator URL (default from config: http://localhost:8000)")
	minionCmd.Flags().StringVar(&minionID, "id", "", "Minion id (default: random)")
	minionCmd.Flags().StringVar(&minionHost, "host", "", "Host reported at registration")
	minionCmd.Flags().IntVar(&minionPort, "port", 0, "Port reported at registration")
	minionCmd.Flags().StringVar(&minionKeyspace, "keyspace", "", "Keyspace name used for tasks")
	minionCmd.Flags().StringVar(&minionKeyspaceFile, "keyspace-file", "", "YAML keyspace definition")
	minionCmd.Flags().IntVar(&minionPoll, "poll-interval", 0, "Candidates between cancellation polls")
	minionCmd.Flags().DurationVar(&minionHeartbeat, "heartbeat-interval", 0, "Heartbeat period")
	minionCmd.Flags().DurationVar(&minionRetryDelay, "retry-delay", 0, "Delay between retries of failed coordinator calls")
	minionCmd.Flags().IntVar(&minionMetricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 = off)")
}

func minionOverrides(cmd *cobra.Command) map[string]any {
	o := map[string]any{}
	set(cmd, o, "coordinator", "minion.coordinator_url", minionCoordinator)
	set(cmd, o, "id", "minion.id", minionID)
	set(cmd, o, "host", "minion.host", minionHost)
	set(cmd, o, "port", "minion.port", minionPort)
	set(cmd, o, "keyspace", "keyspace.name", minionKeyspace)
	set(cmd, o, "keyspace-file", "keyspace.file", minionKeyspaceFile)
	set(cmd, o, "poll-interval", "minion.poll_interval", minionPoll)
	set(cmd, o, "heartbeat-interval", "minion.heartbeat_interval", minionHeartbeat.String())
	set(cmd, o, "retry-delay", "minion.retry_delay", minionRetryDelay.String())
	return o
}

func runMinion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, minionOverrides(cmd))
	if err != nil {
		return err
	}
	if err := observability.InitServerLogger("gocrack-minion", cfg.Logging.Level, cfg.Logging.JSON()); err != nil {
		return exitError(ExitConfigInvalid, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger
	defer func() { _ = logger.Sync() }()

	enc, err := keyspace.Resolve(cfg.Keyspace.Name, cfg.Keyspace.File)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid keyspace", err)
	}

	coord, err := client.New(cfg.Minion.CoordinatorURL, client.WithTimeout(cfg.Minion.RequestTimeout))
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid coordinator URL", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec worker.Recorder
	metricsDone := make(chan error, 1)
	if minionMetricsPort > 0 {
		metrics := observability.NewMetrics("minion")
		rec = metrics
		go func() {
			metricsDone <- server.ServeMetrics(ctx, cfg.Minion.Host, minionMetricsPort, metrics, logger)
		}()
	} else {
		close(metricsDone)
	}

	m, err := worker.NewMinion(worker.Config{
		ID:                cfg.Minion.ID,
		Host:              cfg.Minion.Host,
		Port:              cfg.Minion.Port,
		Capabilities:      cfg.Minion.Capabilities,
		KeyspaceName:      cfg.Keyspace.Name,
		Encoder:           enc,
		HeartbeatInterval: cfg.Minion.HeartbeatInterval,
		RetryDelay:        cfg.Minion.RetryDelay,
		IdleDelay:         cfg.Minion.IdleDelay,
		PollInterval:      cfg.Minion.PollInterval,
		ProgressInterval:  cfg.Minion.ProgressInterval,
	}, coord, logger, rec)
	if err != nil {
		return exitError(ExitConfigInvalid, "Invalid minion configuration", err)
	}

	logger.Info("Minion starting",
		zap.String("minion_id", m.ID()),
		zap.String("coordinator", coord.BaseURL()),
		zap.String("keyspace", cfg.Keyspace.Name),
		zap.Int("poll_interval", cfg.Minion.PollInterval))

	runErr := m.Run(ctx)
	stop()
	if err := <-metricsDone; err != nil {
		logger.Warn("Metrics listener failed", zap.Error(err))
	}
	if runErr != nil {
		return exitError(ExitServiceUnavailable, "Minion failed", runErr)
	}
	logger.Info("Minion stopped", zap.String("minion_id", m.ID()))
	return nil
}
