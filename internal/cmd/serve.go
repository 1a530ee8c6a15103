package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gocrack/internal/config"
	"github.com/3leaps/gocrack/internal/observability"
	"github.com/3leaps/gocrack/internal/server"
	"github.com/3leaps/gocrack/internal/server/handlers"
	"github.com/3leaps/gocrack/pkg/coordinator"
	"github.com/3leaps/gocrack/pkg/digest"
	"github.com/3leaps/gocrack/pkg/keyspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator",
	Long: `Run the coordinator HTTP service.

The coordinator accepts hash lists, splits each hash's keyspace into
slices, assigns slices to minions, and cancels sibling slices once a match
is reported. Minions that miss heartbeats for --heartbeat-timeout are
marked disconnected and their slices return to the queue.

Example:
  gocrack serve
  gocrack serve --port 8000 --slices 16
  gocrack serve --keyspace-file keyspace.yaml --keyspace lowercase5`,
	RunE: runServe,
}

var (
	serveHost             string
	servePort             int
	serveSlices           int
	serveKeyspace         string
	serveKeyspaceFile     string
	serveAlgorithm        string
	serveHeartbeatTimeout time.Duration
	serveMetricsPort      int
	serveNoMetrics        bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config: localhost)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config: 8000)")
	serveCmd.Flags().IntVar(&serveSlices, "slices", 0, "Slices per hash (0 = one per active minion)")
	serveCmd.Flags().StringVar(&serveKeyspace, "keyspace", "", "Keyspace name ("+strings.Join(keyspace.Names(), ", ")+")")
	serveCmd.Flags().StringVar(&serveKeyspaceFile, "keyspace-file", "", "YAML keyspace definition")
	serveCmd.Flags().StringVar(&serveAlgorithm, "algorithm", "", "Digest algorithm (md5, sha1, sha256)")
	serveCmd.Flags().DurationVar(&serveHeartbeatTimeout, "heartbeat-timeout", 0, "Disconnect minions silent for this long")
	serveCmd.Flags().IntVar(&serveMetricsPort, "metrics-port", 0, "Prometheus metrics port")
	serveCmd.Flags().BoolVar(&serveNoMetrics, "no-metrics", false, "Disable the metrics listener")
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	o := map[string]any{}
	set(cmd, o, "host", "server.host", serveHost)
	set(cmd, o, "port", "server.port", servePort)
	set(cmd, o, "slices", "tasks.slices", serveSlices)
	set(cmd, o, "keyspace", "keyspace.name", serveKeyspace)
	set(cmd, o, "keyspace-file", "keyspace.file", serveKeyspaceFile)
	set(cmd, o, "algorithm", "digest.algorithm", serveAlgorithm)
	set(cmd, o, "heartbeat-timeout", "liveness.heartbeat_timeout", serveHeartbeatTimeout.String())
	set(cmd, o, "metrics-port", "metrics.port", serveMetricsPort)
	set(cmd, o, "no-metrics", "metrics.enabled", !serveNoMetrics)
	return o
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, serveOverrides(cmd))
	if err != nil {
		return err
	}

	if err := observability.InitServerLogger("gocrack-coordinator", cfg.Logging.Level, cfg.Logging.JSON()); err != nil {
		return exitError(ExitConfigInvalid, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger
	defer func() { _ = logger.Sync() }()

	coord, metrics, err := buildCoordinator(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("signal", shutdownHealthChecker{ctx: ctx})

	opts := []server.Option{
		server.WithCoordinator(coord),
		server.WithLogger(logger),
		server.WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		}),
	}
	if metrics != nil {
		opts = append(opts, server.WithMetrics(metrics))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	sweep := cfg.Liveness.EffectiveSweepInterval()
	go coord.RunSweeper(ctx, sweep)

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	if metrics != nil {
		running++
		go func() {
			errCh <- server.ServeMetrics(ctx, cfg.Server.Host, cfg.Metrics.Port, metrics, logger)
		}()
	}

	info := coord.Info()
	logger.Info("Coordinator started",
		zap.String("addr", srv.Addr()),
		zap.String("keyspace", info.Keyspace),
		zap.Int64("min", info.MinValue),
		zap.Int64("max", info.MaxValue),
		zap.String("algorithm", info.Algorithm),
		zap.Int("slices", cfg.Tasks.Slices),
		zap.Duration("heartbeat_timeout", cfg.Liveness.HeartbeatTimeout),
		zap.Duration("sweep_interval", sweep),
		zap.Bool("metrics", metrics != nil))

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	if firstErr != nil {
		return exitError(ExitServiceUnavailable, "Coordinator failed", firstErr)
	}
	logger.Info("Coordinator stopped")
	return nil
}

// buildCoordinator wires the keyspace, digest and metrics from cfg. The
// returned metrics are nil when disabled.
func buildCoordinator(cfg *config.Config, logger *zap.Logger) (*coordinator.Coordinator, *observability.Metrics, error) {
	enc, err := keyspace.Resolve(cfg.Keyspace.Name, cfg.Keyspace.File)
	if err != nil {
		return nil, nil, exitError(ExitInvalidArgument, "Invalid keyspace", err)
	}
	algo, err := digest.Lookup(cfg.Digest.Algorithm)
	if err != nil {
		return nil, nil, exitError(ExitInvalidArgument, "Invalid digest algorithm", err)
	}

	var metrics *observability.Metrics
	opts := coordinator.Options{
		Encoder:          enc,
		KeyspaceName:     cfg.Keyspace.Name,
		Algorithm:        &algo,
		Slices:           cfg.Tasks.Slices,
		HeartbeatTimeout: cfg.Liveness.HeartbeatTimeout,
		Logger:           logger,
	}
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("coordinator")
		opts.Recorder = metrics
	}

	coord, err := coordinator.New(opts)
	if err != nil {
		return nil, nil, exitError(ExitConfigInvalid, "Invalid coordinator configuration", err)
	}
	return coord, metrics, nil
}

// shutdownHealthChecker reports unhealthy once a shutdown signal arrived so
// load balancers drain the instance.
type shutdownHealthChecker struct {
	ctx context.Context
}

func (c shutdownHealthChecker) CheckHealth(context.Context) error {
	if c.ctx == nil {
		return nil
	}
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
