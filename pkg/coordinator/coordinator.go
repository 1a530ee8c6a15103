// Package coordinator implements the master side of a crack run: it accepts
// target hashes, slices the keyspace into tasks, hands tasks to registered
// minions and settles their results.
package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/digest"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/keyspace"
	"github.com/3leaps/gocrack/pkg/partition"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// DefaultHeartbeatTimeout is how long a minion may stay silent before the
// sweep disconnects it.
const DefaultHeartbeatTimeout = 30 * time.Second

var (
	// ErrInvalidHash indicates a submitted line that is not a digest of the
	// configured algorithm.
	ErrInvalidHash = errors.New("invalid hash")

	// ErrEmptyPayload indicates a submission without any hash.
	ErrEmptyPayload = errors.New("no hashes in payload")

	// ErrInvalidMinion indicates a registration without a minion id.
	ErrInvalidMinion = errors.New("minion id is required")

	// ErrMinionInactive indicates a claim from a minion the directory marked
	// disconnected. It wraps directory.ErrNotFound so the minion registers
	// again before claiming.
	ErrMinionInactive = fmt.Errorf("minion disconnected, register again: %w", directory.ErrNotFound)
)

// Recorder receives coordinator events for metrics.
type Recorder interface {
	HashSubmitted(tasks int)
	TaskClaimed()
	TaskSettled(status taskstore.Status, cancelled int)
	Requeued(n int)
	Expired(n int)
	ObserveState(counts map[taskstore.Status]int, activeMinions int)
}

type nopRecorder struct{}

func (nopRecorder) HashSubmitted(int) {}
func (nopRecorder) TaskClaimed() {}
func (nopRecorder) TaskSettled(taskstore.Status, int) {}
func (nopRecorder) Requeued(int) {}
func (nopRecorder) Expired(int) {}
func (nopRecorder) ObserveState(map[taskstore.Status]int, int) {}

// Options configures a Coordinator.
type Options struct {
	// Encoder maps keyspace integers to candidate strings. Required.
	Encoder keyspace.Encoder
	// KeyspaceName is reported to minions with each assignment.
	KeyspaceName string
	// Algorithm is the digest the targets are expressed in. Defaults to md5.
	Algorithm *digest.Algorithm
	// Slices fixes the number of slices per hash. Zero uses the number of
	// active minions at submission time.
	Slices int
	// HeartbeatTimeout defaults to DefaultHeartbeatTimeout.
	HeartbeatTimeout time.Duration

	Logger   *zap.Logger
	Recorder Recorder
	// Clock overrides the time source of the store and directory.
	Clock func() time.Time
}

// SubmitSummary reports what a hash submission created.
type SubmitSummary struct {
	Hashes []string
	Tasks  int
	Slices int
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	// liveness serializes minion status changes with claims, so a task is
	// never handed to a minion between its expiry and the requeue.
	liveness sync.Mutex

	store     *taskstore.Store
	directory *directory.Directory
	encoder   keyspace.Encoder
	name      string
	algorithm digest.Algorithm
	slices    int
	timeout   time.Duration
	logger    *zap.Logger
	recorder  Recorder
}

// New creates a coordinator with empty state.
func New(opts Options) (*Coordinator, error) {
	if opts.Encoder == nil {
		return nil, errors.New("keyspace encoder is required")
	}
	if opts.Slices < 0 {
		return nil, fmt.Errorf("%w: slices must not be negative", partition.ErrInvalidRange)
	}

	algo := opts.Algorithm
	if algo == nil {
		md5, err := digest.Lookup(digest.MD5)
		if err != nil {
			return nil, err
		}
		algo = &md5
	}

	c := &Coordinator{
		store:     taskstore.New(),
		directory: directory.New(),
		encoder:   opts.Encoder,
		name:      opts.KeyspaceName,
		algorithm: *algo,
		slices:    opts.Slices,
		timeout:   opts.HeartbeatTimeout,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultHeartbeatTimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if opts.Clock != nil {
		c.store.WithClock(opts.Clock)
		c.directory.WithClock(opts.Clock)
	}
	return c, nil
}

// Info describes the keyspace and digest served by this coordinator.
func (c *Coordinator) Info() api.CoordinatorInfo {
	return api.CoordinatorInfo{
		Keyspace:  c.name,
		MinValue:  c.encoder.MinValue(),
		MaxValue:  c.encoder.MaxValue(),
		Algorithm: c.algorithm.Name(),
	}
}

// Register upserts a minion in the directory.
func (c *Coordinator) Register(req api.RegisterRequest) (directory.Record, error) {
	id := strings.TrimSpace(req.MinionID)
	if id == "" {
		return directory.Record{}, ErrInvalidMinion
	}
	c.liveness.Lock()
	defer c.liveness.Unlock()

	rec, existed := c.directory.Register(id, req.Host, req.Port, req.Capabilities)
	c.logger.Info("Minion registered",
		zap.String("minion_id", rec.ID),
		zap.String("address", rec.Address()),
		zap.Strings("capabilities", rec.Capabilities),
		zap.Bool("reregistered", existed))
	c.observe()
	return rec, nil
}

// Heartbeat refreshes a minion's liveness.
func (c *Coordinator) Heartbeat(minionID string) (directory.Record, error) {
	c.liveness.Lock()
	defer c.liveness.Unlock()
	return c.directory.Heartbeat(minionID)
}

// Disconnect marks a minion disconnected and returns its assigned tasks to
// the pending pool. It returns the requeued task ids.
func (c *Coordinator) Disconnect(minionID string) ([]string, error) {
	c.liveness.Lock()
	defer c.liveness.Unlock()

	if _, err := c.directory.Disconnect(minionID); err != nil {
		return nil, err
	}
	requeued := c.store.Requeue(minionID)
	c.recorder.Requeued(len(requeued))
	c.logger.Info("Minion disconnected",
		zap.String("minion_id", minionID),
		zap.Strings("requeued", requeued))
	c.observe()
	return requeued, nil
}

// Minions returns every known minion sorted by id.
func (c *Coordinator) Minions() []directory.Record {
	return c.directory.List()
}

// SubmitHashes reads one hash per line from r and creates slice tasks for
// each. Blank lines and lines starting with '#' are skipped; repeated hashes
// within one payload are submitted once.
//
// The whole payload is validated before any task is created, so an error
// leaves the store unchanged.
func (c *Coordinator) SubmitHashes(ctx context.Context, r io.Reader) (SubmitSummary, error) {
	hashes, err := c.parseHashes(ctx, r)
	if err != nil {
		return SubmitSummary{}, err
	}

	slices := c.slices
	if slices == 0 {
		slices = c.directory.ActiveCount()
	}
	if slices <= 0 {
		return SubmitSummary{}, fmt.Errorf("%w: no active minions to slice for", partition.ErrInvalidRange)
	}

	domain := keyspace.Domain(c.encoder)
	summary := SubmitSummary{Hashes: hashes, Slices: slices}
	for _, h := range hashes {
		tasks, err := c.store.SubmitHash(h, domain, slices)
		if err != nil {
			return summary, fmt.Errorf("submit hash %s: %w", h, err)
		}
		summary.Tasks += len(tasks)
		c.recorder.HashSubmitted(len(tasks))
		c.logger.Info("Hash submitted",
			zap.String("hash", h),
			zap.Int("tasks", len(tasks)),
			zap.Stringer("keyspace", domain))
	}
	c.observe()
	return summary, nil
}

func (c *Coordinator) parseHashes(ctx context.Context, r io.Reader) ([]string, error) {
	var hashes []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		h, err := c.algorithm.Normalize(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidHash, lineNo, err)
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		hashes = append(hashes, h)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hashes: %w", err)
	}
	if len(hashes) == 0 {
		return nil, ErrEmptyPayload
	}
	return hashes, nil
}

// Claim assigns the next pending task to minionID.
//
// It returns false when there is nothing to do. Unregistered minions get
// directory.ErrNotFound and disconnected ones ErrMinionInactive.
func (c *Coordinator) Claim(minionID string) (api.TaskAssignment, bool, error) {
	c.liveness.Lock()
	defer c.liveness.Unlock()

	rec, err := c.directory.Get(minionID)
	if err != nil {
		return api.TaskAssignment{}, false, err
	}
	if rec.Status != directory.StatusActive {
		return api.TaskAssignment{}, false, fmt.Errorf("%w: %s", ErrMinionInactive, minionID)
	}

	t, ok := c.store.ClaimNext(minionID)
	if !ok {
		return api.TaskAssignment{}, false, nil
	}
	c.recorder.TaskClaimed()
	c.logger.Debug("Task claimed",
		zap.String("task_id", t.ID),
		zap.String("minion_id", minionID),
		zap.Int64("start", t.Start),
		zap.Int64("end", t.End))
	c.observe()
	return c.assignment(t), true, nil
}

func (c *Coordinator) assignment(t taskstore.Task) api.TaskAssignment {
	return api.TaskAssignment{
		TaskID:    t.ID,
		HashValue: t.HashValue,
		Algorithm: c.algorithm.Name(),
		Start:     t.Start,
		End:       t.End,
		StartStr:  c.encoder.Encode(t.Start),
		EndStr:    c.encoder.Encode(t.End),
		Keyspace:  c.name,
	}
}

// TaskStatus returns the status of one task.
func (c *Coordinator) TaskStatus(taskID string) (taskstore.Status, error) {
	return c.store.Status(taskID)
}

// Task returns a copy of one task, including its current holder.
func (c *Coordinator) Task(taskID string) (taskstore.Task, error) {
	return c.store.Get(taskID)
}

// SubmitResult settles a task. See taskstore.Store.SubmitResult.
func (c *Coordinator) SubmitResult(minionID, taskID, result string) (taskstore.Outcome, error) {
	out, err := c.store.SubmitResult(minionID, taskID, result)
	if err != nil {
		return out, err
	}
	if !out.Changed {
		c.logger.Debug("Result for settled task ignored",
			zap.String("task_id", taskID),
			zap.String("minion_id", minionID),
			zap.String("status", string(out.Task.Status)))
		return out, nil
	}

	c.recorder.TaskSettled(out.Task.Status, len(out.Cancelled))
	if out.Task.Status == taskstore.StatusCompleted {
		c.logger.Info("Hash cracked",
			zap.String("hash", out.Task.HashValue),
			zap.String("result", out.Task.Result),
			zap.String("task_id", taskID),
			zap.String("minion_id", minionID),
			zap.Int("cancelled", len(out.Cancelled)))
	} else {
		c.logger.Debug("Slice exhausted",
			zap.String("task_id", taskID),
			zap.String("minion_id", minionID))
	}
	c.observe()
	return out, nil
}

// FailTask marks an assigned task failed.
func (c *Coordinator) FailTask(minionID, taskID, reason string) (taskstore.Outcome, error) {
	out, err := c.store.Fail(minionID, taskID, reason)
	if err != nil {
		return out, err
	}
	if out.Changed {
		c.recorder.TaskSettled(out.Task.Status, 0)
		c.logger.Warn("Task failed",
			zap.String("task_id", taskID),
			zap.String("minion_id", minionID),
			zap.String("reason", reason))
		c.observe()
	}
	return out, nil
}

// Tasks returns every task in creation order.
func (c *Coordinator) Tasks() []taskstore.Task {
	return c.store.List()
}

// Snapshot returns the aggregate view served at /status.
func (c *Coordinator) Snapshot() api.StatusResponse {
	info := c.Info()
	return api.StatusResponse{
		Minions: c.directory.List(),
		Tasks:   c.store.List(),
		Counts:  c.store.Counts(),
		Hashes:  c.store.Summaries(),
		Config:  &info,
	}
}

// Sweep disconnects minions whose last heartbeat is older than the
// heartbeat timeout and requeues their assigned tasks. It returns the
// expired minion ids.
func (c *Coordinator) Sweep() []string {
	c.liveness.Lock()
	defer c.liveness.Unlock()

	expired := c.directory.Expire(c.timeout)
	if len(expired) == 0 {
		return nil
	}

	c.recorder.Expired(len(expired))
	for _, id := range expired {
		requeued := c.store.Requeue(id)
		c.recorder.Requeued(len(requeued))
		c.logger.Warn("Minion missed heartbeat deadline",
			zap.String("minion_id", id),
			zap.Duration("timeout", c.timeout),
			zap.Strings("requeued", requeued))
	}
	c.observe()
	return expired
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.timeout / 3
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

func (c *Coordinator) observe() {
	c.recorder.ObserveState(c.store.Counts(), c.directory.ActiveCount())
}
