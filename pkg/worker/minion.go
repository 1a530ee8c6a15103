package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/client"
	"github.com/3leaps/gocrack/pkg/keyspace"
)

// Defaults for the run loop.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultRetryDelay        = 5 * time.Second
	DefaultIdleDelay         = time.Second
	disconnectTimeout        = 5 * time.Second
)

// Coordinator is the subset of the coordinator API a minion uses.
// *client.Client implements it.
type Coordinator interface {
	Register(ctx context.Context, req api.RegisterRequest) error
	Heartbeat(ctx context.Context, minionID string) error
	Disconnect(ctx context.Context, minionID string) error
	GetTask(ctx context.Context, minionID string) (api.TaskAssignment, bool, error)
	TaskStatus(ctx context.Context, taskID string) (api.TaskStatusResponse, error)
	SubmitResult(ctx context.Context, minionID, taskID, result string) (api.TaskUpdateResponse, error)
	FailTask(ctx context.Context, minionID, taskID, reason string) (api.TaskUpdateResponse, error)
}

// Config configures a Minion.
type Config struct {
	ID           string
	Host         string
	Port         int
	Capabilities []string

	KeyspaceName string
	Encoder      keyspace.Encoder

	HeartbeatInterval time.Duration
	// RetryDelay spaces retries of failed coordinator calls.
	RetryDelay time.Duration
	// IdleDelay is the pause after a claim that found no work.
	IdleDelay        time.Duration
	PollInterval     int
	ProgressInterval int
}

// Minion registers with a coordinator and processes tasks one at a time
// until its context is cancelled.
type Minion struct {
	cfg     Config
	coord   Coordinator
	cracker *Cracker
	logger  *zap.Logger
}

// NewMinion validates cfg and returns a Minion. An empty ID gets a random
// "minion-" id.
func NewMinion(cfg Config, coord Coordinator, logger *zap.Logger, rec Recorder) (*Minion, error) {
	if coord == nil {
		return nil, errors.New("coordinator client is required")
	}
	if cfg.Encoder == nil {
		return nil, errors.New("keyspace encoder is required")
	}
	if cfg.ID == "" {
		cfg.ID = "minion-" + uuid.NewString()[:8]
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = DefaultIdleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("minion_id", cfg.ID))

	return &Minion{
		cfg:   cfg,
		coord: coord,
		cracker: &Cracker{
			MinionID:         cfg.ID,
			Encoder:          cfg.Encoder,
			KeyspaceName:     cfg.KeyspaceName,
			Status:           coord,
			PollInterval:     cfg.PollInterval,
			ProgressInterval: cfg.ProgressInterval,
			Logger:           logger,
			Recorder:         rec,
		},
		logger: logger,
	}, nil
}

// ID returns the minion id.
func (m *Minion) ID() string {
	return m.cfg.ID
}

// Run registers, starts the heartbeat and processes tasks until ctx is
// done. On exit it disconnects from the coordinator so assigned work is
// requeued.
func (m *Minion) Run(ctx context.Context) error {
	if err := m.register(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer m.disconnect()

	stopHeartbeat := m.startHeartbeat(ctx)
	defer stopHeartbeat()

	limiter := rate.NewLimiter(rate.Every(m.cfg.RetryDelay), 1)
	for {
		if ctx.Err() != nil {
			return nil
		}

		task, ok, err := m.coord.GetTask(ctx, m.cfg.ID)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, client.ErrNotFound):
			m.logger.Warn("Coordinator does not know this minion, re-registering")
			if err := m.register(ctx); err != nil {
				return nil
			}
			continue
		case err != nil:
			m.logger.Warn("Claim failed", zap.Error(err))
			if limiter.Wait(ctx) != nil {
				return nil
			}
			continue
		case !ok:
			if !sleep(ctx, m.cfg.IdleDelay) {
				return nil
			}
			continue
		}

		m.process(ctx, task)
	}
}

// process searches one claimed task and reports its outcome.
func (m *Minion) process(ctx context.Context, task api.TaskAssignment) {
	res, crackErr := m.cracker.Crack(ctx, task)
	switch {
	case errors.Is(crackErr, ErrUnworkable):
		m.logger.Error("Task cannot be processed", zap.String("task_id", task.TaskID), zap.Error(crackErr))
		m.report(ctx, task.TaskID, "fail", func(ctx context.Context) error {
			_, err := m.coord.FailTask(ctx, m.cfg.ID, task.TaskID, crackErr.Error())
			return err
		})
	case crackErr != nil:
		// Shutdown mid-slice: the disconnect on exit requeues the task.
		m.logger.Info("Crack interrupted", zap.String("task_id", task.TaskID), zap.Error(crackErr))
	case res.Outcome == OutcomeCancelled:
	default:
		result := res.Candidate
		m.report(ctx, task.TaskID, "submit", func(ctx context.Context) error {
			resp, err := m.coord.SubmitResult(ctx, m.cfg.ID, task.TaskID, result)
			if err == nil {
				m.logger.Info("Result submitted",
					zap.String("task_id", task.TaskID),
					zap.String("outcome", string(res.Outcome)),
					zap.String("new_status", string(resp.NewStatus)))
			}
			return err
		})
	}
}

// report retries fn on transport errors until it succeeds, is rejected, or
// ctx is done.
func (m *Minion) report(ctx context.Context, taskID, op string, fn func(context.Context) error) {
	err := retry(ctx, m.cfg.RetryDelay, func() error {
		err := fn(ctx)
		if errors.Is(err, client.ErrTransport) {
			m.logger.Warn("Coordinator unavailable, retrying", zap.String("op", op), zap.String("task_id", taskID), zap.Error(err))
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		m.logger.Warn("Coordinator rejected report", zap.String("op", op), zap.String("task_id", taskID), zap.Error(err))
	}
}

// register blocks until the coordinator accepts the registration or ctx
// is done.
func (m *Minion) register(ctx context.Context) error {
	req := api.RegisterRequest{
		MinionID:     m.cfg.ID,
		Host:         m.cfg.Host,
		Port:         m.cfg.Port,
		Capabilities: m.cfg.Capabilities,
	}
	err := retry(ctx, m.cfg.RetryDelay, func() error {
		err := m.coord.Register(ctx, req)
		if err != nil && ctx.Err() == nil {
			m.logger.Warn("Registration failed, retrying", zap.Error(err), zap.Duration("delay", m.cfg.RetryDelay))
		}
		if errors.Is(err, client.ErrRejected) {
			return fmt.Errorf("%w: %v", client.ErrTransport, err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("register minion %s: %w", m.cfg.ID, err)
	}
	m.logger.Info("Registered with coordinator", zap.String("host", m.cfg.Host), zap.Int("port", m.cfg.Port))
	return nil
}

func (m *Minion) startHeartbeat(ctx context.Context) func() {
	t := time.NewTicker(m.cfg.HeartbeatInterval)
	stopped := make(chan struct{})
	hbCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(stopped)
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				m.heartbeat(hbCtx)
			}
		}
	}()

	return func() {
		t.Stop()
		cancel()
		<-stopped
	}
}

func (m *Minion) heartbeat(ctx context.Context) {
	err := m.coord.Heartbeat(ctx, m.cfg.ID)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, client.ErrNotFound):
		m.logger.Warn("Heartbeat rejected, re-registering")
		req := api.RegisterRequest{MinionID: m.cfg.ID, Host: m.cfg.Host, Port: m.cfg.Port, Capabilities: m.cfg.Capabilities}
		if err := m.coord.Register(ctx, req); err != nil {
			m.logger.Warn("Re-registration failed", zap.Error(err))
		}
	default:
		m.logger.Warn("Heartbeat failed", zap.Error(err))
	}
}

func (m *Minion) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := m.coord.Disconnect(ctx, m.cfg.ID); err != nil {
		m.logger.Warn("Disconnect failed", zap.Error(err))
		return
	}
	m.logger.Info("Disconnected from coordinator")
}

// retry calls fn until it returns nil or a non-transport error, spacing
// attempts by delay. It returns ctx.Err() when ctx ends first.
func retry(ctx context.Context, delay time.Duration, fn func() error) error {
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		err := fn()
		if err == nil || !errors.Is(err, client.ErrTransport) {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
