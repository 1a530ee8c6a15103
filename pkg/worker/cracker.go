// Package worker implements the minion side: the crack loop that searches
// one slice, and the run loop that registers, heartbeats, claims tasks and
// reports results.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/digest"
	"github.com/3leaps/gocrack/pkg/keyspace"
	"github.com/3leaps/gocrack/pkg/partition"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// Defaults for the crack loop.
const (
	DefaultPollInterval     = 1_000
	DefaultProgressInterval = 100_000
)

// ErrUnworkable marks a task this minion can never search, such as an
// unknown algorithm or a range outside the keyspace.
var ErrUnworkable = errors.New("task cannot be processed")

// Outcome is how a slice search ended.
type Outcome string

const (
	OutcomeFound     Outcome = "found"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCancelled Outcome = "cancelled"
)

// Result reports a finished search.
type Result struct {
	Outcome   Outcome
	Candidate string
	Checked   int64
}

// StatusChecker answers the cooperative cancellation poll.
type StatusChecker interface {
	TaskStatus(ctx context.Context, taskID string) (api.TaskStatusResponse, error)
}

// Recorder receives crack loop events for metrics.
type Recorder interface {
	CandidatesChecked(n int)
	SliceSearched(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) CandidatesChecked(int) {}
func (nopRecorder) SliceSearched(string) {}

// Cracker brute forces one slice at a time.
type Cracker struct {
	// MinionID is compared with the task holder on every poll. Empty skips
	// the check.
	MinionID string
	// Encoder is used for tasks whose keyspace is KeyspaceName or empty.
	Encoder      keyspace.Encoder
	KeyspaceName string
	Status       StatusChecker
	// PollInterval is the number of candidates between status polls.
	PollInterval int
	// ProgressInterval is the number of candidates between progress logs.
	ProgressInterval int
	Logger           *zap.Logger
	Recorder         Recorder
}

// Crack searches task.Start..task.End in order.
//
// Every PollInterval candidates it asks the coordinator for the task status
// and stops with OutcomeCancelled when the task is no longer assigned to
// this minion. A
// failed poll is ignored and the search continues. Crack never submits; the
// caller reports the result. Context cancellation returns ctx.Err().
func (c *Cracker) Crack(ctx context.Context, task api.TaskAssignment) (Result, error) {
	logger := c.logger().With(zap.String("task_id", task.TaskID))
	rec := c.recorder()

	algo, err := digest.Lookup(task.Algorithm)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnworkable, err)
	}
	matcher, err := algo.NewMatcher(task.HashValue)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnworkable, err)
	}
	enc, err := c.encoderFor(task)
	if err != nil {
		return Result{}, err
	}

	poll := c.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	progress := c.ProgressInterval
	if progress <= 0 {
		progress = DefaultProgressInterval
	}

	logger.Info("Cracking slice",
		zap.String("hash", task.HashValue),
		zap.Int64("start", task.Start),
		zap.Int64("end", task.End),
		zap.String("start_str", enc.Encode(task.Start)),
		zap.String("end_str", enc.Encode(task.End)))

	var checked int64
	pending := 0
	flush := func() {
		rec.CandidatesChecked(pending)
		pending = 0
	}

	for n := task.Start; n <= task.End; n++ {
		candidate := enc.Encode(n)
		checked++
		pending++

		if matcher.Match(candidate) {
			flush()
			rec.SliceSearched(string(OutcomeFound))
			logger.Info("Match found", zap.String("candidate", candidate), zap.Int64("checked", checked))
			return Result{Outcome: OutcomeFound, Candidate: candidate, Checked: checked}, nil
		}

		if checked%int64(progress) == 0 {
			flush()
			logger.Info("Crack progress",
				zap.Int64("checked", checked),
				zap.Int64("total", task.End-task.Start+1),
				zap.String("current", candidate))
		}

		if checked%int64(poll) == 0 {
			if err := ctx.Err(); err != nil {
				flush()
				return Result{Checked: checked}, err
			}
			resp, err := c.Status.TaskStatus(ctx, task.TaskID)
			switch {
			case err != nil:
				if ctxErr := ctx.Err(); ctxErr != nil {
					flush()
					return Result{Checked: checked}, ctxErr
				}
				logger.Debug("Status poll failed, continuing", zap.Error(err))
			case resp.Status != taskstore.StatusAssigned,
				c.MinionID != "" && resp.AssignedTo != "" && resp.AssignedTo != c.MinionID:
				flush()
				rec.SliceSearched(string(OutcomeCancelled))
				logger.Info("Task no longer assigned, stopping",
					zap.String("status", string(resp.Status)),
					zap.String("assigned_to", resp.AssignedTo),
					zap.Int64("checked", checked))
				return Result{Outcome: OutcomeCancelled, Checked: checked}, nil
			}
		}

		if n == task.End {
			break
		}
	}

	flush()
	rec.SliceSearched(string(OutcomeExhausted))
	logger.Info("Slice exhausted", zap.Int64("checked", checked))
	return Result{Outcome: OutcomeExhausted, Checked: checked}, nil
}

func (c *Cracker) encoderFor(task api.TaskAssignment) (keyspace.Encoder, error) {
	enc := c.Encoder
	if task.Keyspace != "" && task.Keyspace != c.KeyspaceName {
		builtin, err := keyspace.Lookup(task.Keyspace)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnworkable, err)
		}
		enc = builtin
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: no keyspace encoder configured", ErrUnworkable)
	}
	domain := partition.Range{Start: enc.MinValue(), End: enc.MaxValue()}
	if task.Start > task.End || !domain.Contains(task.Start) || !domain.Contains(task.End) {
		return nil, fmt.Errorf("%w: range [%d, %d] outside keyspace %s",
			ErrUnworkable, task.Start, task.End, domain)
	}
	return enc, nil
}

func (c *Cracker) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Cracker) recorder() Recorder {
	if c.Recorder == nil {
		return nopRecorder{}
	}
	return c.Recorder
}
