// Package taskstore owns hash tasks and mediates claims, results and
// cross-slice cancellation.
//
// Every operation that reads and then mutates task state runs under a
// single lock acquisition, so a task is never handed to two claimers and
// the first successful slice of a hash always wins.
package taskstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/gocrack/pkg/partition"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an unknown task id.
	ErrNotFound = errors.New("task not found")

	// ErrNotAssigned indicates a minion acting on a task it does not hold.
	ErrNotAssigned = errors.New("task not assigned to this minion")
)

// Outcome describes the effect of a result or failure submission.
type Outcome struct {
	Task Task
	// Changed is false when the task was already terminal.
	Changed bool
	// Cancelled lists sibling task ids cancelled by this submission.
	Cancelled []string
}

// Store holds all tasks in memory in creation order.
type Store struct {
	mu          sync.Mutex
	tasks       []*Task
	index       map[string]int
	byHash      map[string][]int
	generations map[string]int
	// scanFrom is a claim hint: no task before it is pending.
	scanFrom int
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		index:       make(map[string]int),
		byHash:      make(map[string][]int),
		generations: make(map[string]int),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SubmitHash partitions domain into slices ranges and creates one pending
// task per non-empty range.
//
// Task ids are "<hash>_<slice>" for the first submission of a hash and
// "<hash>_g<n>_<slice>" for the n-th resubmission, so ids never collide.
func (s *Store) SubmitHash(hashValue string, domain partition.Range, slices int) ([]Task, error) {
	hashValue = strings.TrimSpace(hashValue)
	if hashValue == "" {
		return nil, errors.New("hash value is required")
	}

	ranges, err := partition.Split(domain.Start, domain.End, slices)
	if err != nil {
		return nil, err
	}
	ranges = partition.NonEmpty(ranges)

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.generations[hashValue]
	s.generations[hashValue] = gen + 1

	now := s.now()
	created := make([]Task, 0, len(ranges))
	for i, r := range ranges {
		id := fmt.Sprintf("%s_%d", hashValue, i)
		if gen > 0 {
			id = fmt.Sprintf("%s_g%d_%d", hashValue, gen, i)
		}
		t := &Task{
			ID:         id,
			HashValue:  hashValue,
			SliceIndex: i,
			Start:      r.Start,
			End:        r.End,
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		pos := len(s.tasks)
		s.tasks = append(s.tasks, t)
		s.index[id] = pos
		s.byHash[hashValue] = append(s.byHash[hashValue], pos)
		created = append(created, *t)
	}
	return created, nil
}

// ClaimNext assigns the first pending task, in creation order, to minionID.
//
// It returns false when no pending task exists.
func (s *Store) ClaimNext(minionID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := s.scanFrom; i < len(s.tasks); i++ {
		t := s.tasks[i]
		if t.Status != StatusPending {
			if i == s.scanFrom {
				s.scanFrom++
			}
			continue
		}
		t.Status = StatusAssigned
		t.AssignedTo = minionID
		t.UpdatedAt = s.now()
		if i == s.scanFrom {
			s.scanFrom++
		}
		return *t, true
	}
	return Task{}, false
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(taskID)
	if err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Status returns the current status of a task.
func (s *Store) Status(taskID string) (Status, error) {
	t, err := s.Get(taskID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

// SubmitResult records the outcome of a slice search.
//
// A non-empty result completes the task and cancels every pending or
// assigned sibling of the same hash. An empty result cancels only this
// task. Submitting against a task that is already terminal changes nothing
// and reports the final state.
func (s *Store) SubmitResult(minionID, taskID, result string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(taskID)
	if err != nil {
		return Outcome{}, err
	}
	if t.AssignedTo != minionID {
		return Outcome{}, fmt.Errorf("%w: task %s, minion %s", ErrNotAssigned, taskID, minionID)
	}
	if t.Status.Terminal() {
		return Outcome{Task: *t}, nil
	}

	now := s.now()
	out := Outcome{Changed: true}
	if result == "" {
		t.Status = StatusCancelled
		t.UpdatedAt = now
		out.Task = *t
		return out, nil
	}

	t.Status = StatusCompleted
	t.Result = result
	t.UpdatedAt = now
	for _, pos := range s.byHash[t.HashValue] {
		sib := s.tasks[pos]
		if sib == t {
			continue
		}
		if sib.Status == StatusPending || sib.Status == StatusAssigned {
			sib.Status = StatusCancelled
			sib.UpdatedAt = now
			out.Cancelled = append(out.Cancelled, sib.ID)
		}
	}
	out.Task = *t
	return out, nil
}

// Fail marks an assigned task as failed after an unrecoverable worker error.
func (s *Store) Fail(minionID, taskID, reason string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(taskID)
	if err != nil {
		return Outcome{}, err
	}
	if t.AssignedTo != minionID {
		return Outcome{}, fmt.Errorf("%w: task %s, minion %s", ErrNotAssigned, taskID, minionID)
	}
	if t.Status.Terminal() {
		return Outcome{Task: *t}, nil
	}

	t.Status = StatusFailed
	t.Error = reason
	t.UpdatedAt = s.now()
	return Outcome{Task: *t, Changed: true}, nil
}

// Requeue returns every task assigned to minionID to pending and clears
// its assignee. Terminal tasks are left alone. It returns the requeued ids.
func (s *Store) Requeue(minionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	now := s.now()
	for i, t := range s.tasks {
		if t.Status != StatusAssigned || t.AssignedTo != minionID {
			continue
		}
		t.Status = StatusPending
		t.AssignedTo = ""
		t.UpdatedAt = now
		ids = append(ids, t.ID)
		if i < s.scanFrom {
			s.scanFrom = i
		}
	}
	return ids
}

// List returns copies of all tasks in creation order.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Counts returns the number of tasks per status. Every status is present.
func (s *Store) Counts() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int, len(AllStatuses()))
	for _, st := range AllStatuses() {
		counts[st] = 0
	}
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts
}

// Summaries aggregates tasks per hash, in order of first submission.
func (s *Store) Summaries() []HashSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []HashSummary
	seen := make(map[string]bool)
	for _, t := range s.tasks {
		if seen[t.HashValue] {
			continue
		}
		seen[t.HashValue] = true
		out = append(out, s.summaryLocked(t.HashValue))
	}
	return out
}

// Summary aggregates the tasks of one hash.
func (s *Store) Summary(hashValue string) (HashSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[hashValue]; !ok {
		return HashSummary{}, fmt.Errorf("%w: no tasks for hash %s", ErrNotFound, hashValue)
	}
	return s.summaryLocked(hashValue), nil
}

func (s *Store) summaryLocked(hashValue string) HashSummary {
	sum := HashSummary{HashValue: hashValue, Counts: make(map[Status]int)}
	for _, pos := range s.byHash[hashValue] {
		t := s.tasks[pos]
		sum.Tasks++
		sum.Counts[t.Status]++
		if t.Status == StatusCompleted && sum.Result == "" {
			sum.Result = t.Result
			sum.FoundBy = t.AssignedTo
		}
	}
	return sum
}

func (s *Store) lookup(taskID string) (*Task, error) {
	pos, ok := s.index[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return s.tasks[pos], nil
}
