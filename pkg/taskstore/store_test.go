package taskstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gocrack/pkg/partition"
)

func fixedClock() func() time.Time {
	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newStore() *Store {
	return New().WithClock(fixedClock())
}

func TestSubmitHash_CreatesPendingSlices(t *testing.T) {
	s := newStore()

	tasks, err := s.SubmitHash("abc", partition.Range{Start: 0, End: 9}, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "abc_0", tasks[0].ID)
	assert.Equal(t, int64(0), tasks[0].Start)
	assert.Equal(t, int64(4), tasks[0].End)
	assert.Equal(t, "abc_1", tasks[1].ID)
	assert.Equal(t, int64(5), tasks[1].Start)
	assert.Equal(t, int64(9), tasks[1].End)
	for _, task := range tasks {
		assert.Equal(t, StatusPending, task.Status)
		assert.Empty(t, task.AssignedTo)
	}
}

func TestSubmitHash_ResubmissionUsesDistinctIDs(t *testing.T) {
	s := newStore()

	_, err := s.SubmitHash("abc", partition.Range{Start: 0, End: 3}, 2)
	require.NoError(t, err)
	again, err := s.SubmitHash("abc", partition.Range{Start: 0, End: 3}, 2)
	require.NoError(t, err)

	assert.Equal(t, "abc_g1_0", again[0].ID)
	assert.Equal(t, "abc_g1_1", again[1].ID)
	assert.Equal(t, 4, s.Len())
}

func TestSubmitHash_ZeroSlicesIsInvalidRange(t *testing.T) {
	s := newStore()

	_, err := s.SubmitHash("abc", partition.Range{Start: 0, End: 9}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, partition.ErrInvalidRange))
	assert.Equal(t, 0, s.Len())
}

func TestSubmitHash_SkipsEmptySlices(t *testing.T) {
	s := newStore()

	tasks, err := s.SubmitHash("abc", partition.Range{Start: 0, End: 1}, 5)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestClaimNext_CreationOrderAndExhaustion(t *testing.T) {
	s := newStore()
	_, err := s.SubmitHash("h1", partition.Range{Start: 0, End: 9}, 2)
	require.NoError(t, err)
	_, err = s.SubmitHash("h2", partition.Range{Start: 0, End: 9}, 1)
	require.NoError(t, err)

	var got []string
	for _, minion := range []string{"m1", "m2", "m3"} {
		task, ok := s.ClaimNext(minion)
		require.True(t, ok)
		assert.Equal(t, StatusAssigned, task.Status)
		assert.Equal(t, minion, task.AssignedTo)
		got = append(got, task.ID)
	}
	assert.Equal(t, []string{"h1_0", "h1_1", "h2_0"}, got)

	_, ok := s.ClaimNext("m4")
	assert.False(t, ok)
}

func TestClaimNext_ConcurrentClaimersNeverShareATask(t *testing.T) {
	s := New()
	_, err := s.SubmitHash("h", partition.Range{Start: 0, End: 999}, 200)
	require.NoError(t, err)

	var mu sync.Mutex
	owners := make(map[string]string)
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(minion string) {
			defer wg.Done()
			for {
				task, ok := s.ClaimNext(minion)
				if !ok {
					return
				}
				mu.Lock()
				prev, dup := owners[task.ID]
				owners[task.ID] = minion
				mu.Unlock()
				assert.False(t, dup, "task %s claimed by %s and %s", task.ID, prev, minion)
			}
		}(fmt.Sprintf("m%d", w))
	}
	wg.Wait()

	assert.Len(t, owners, 200)
	for id, owner := range owners {
		task, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, owner, task.AssignedTo)
	}
}

func TestStatus_NotFound(t *testing.T) {
	s := newStore()

	_, err := s.Status("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSubmitResult_MatchCancelsSiblings(t *testing.T) {
	s := newStore()
	_, err := s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 3)
	require.NoError(t, err)

	first, _ := s.ClaimNext("m1")  // h_0
	second, _ := s.ClaimNext("m2") // h_1
	assert.Equal(t, "h_0", first.ID)

	out, err := s.SubmitResult("m2", second.ID, "EX-5")
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, StatusCompleted, out.Task.Status)
	assert.Equal(t, "EX-5", out.Task.Result)
	assert.ElementsMatch(t, []string{"h_0", "h_2"}, out.Cancelled)

	st, _ := s.Status("h_0")
	assert.Equal(t, StatusCancelled, st, "assigned sibling is cancelled")
	st, _ = s.Status("h_2")
	assert.Equal(t, StatusCancelled, st, "pending sibling is cancelled")

	sum, err := s.Summary("h")
	require.NoError(t, err)
	assert.Equal(t, "EX-5", sum.Result)
	assert.Equal(t, "m2", sum.FoundBy)
	assert.True(t, sum.Done())
}

func TestSubmitResult_DoesNotTouchOtherHashes(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("a", partition.Range{Start: 0, End: 9}, 1)
	_, _ = s.SubmitHash("b", partition.Range{Start: 0, End: 9}, 1)

	ta, _ := s.ClaimNext("m1")
	_, err := s.SubmitResult("m1", ta.ID, "x")
	require.NoError(t, err)

	st, _ := s.Status("b_0")
	assert.Equal(t, StatusPending, st)
}

func TestSubmitResult_NeverAltersCompletedSibling(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 2)
	a, _ := s.ClaimNext("m1")
	b, _ := s.ClaimNext("m2")

	_, err := s.SubmitResult("m1", a.ID, "first")
	require.NoError(t, err)

	// m2 has not polled yet and reports a match of its own.
	out, err := s.SubmitResult("m2", b.ID, "second")
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, StatusCancelled, out.Task.Status)

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "first", got.Result)
}

func TestSubmitResult_EmptyResultCancelsOnlyOwnTask(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 2)
	a, _ := s.ClaimNext("m1")

	out, err := s.SubmitResult("m1", a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Task.Status)
	assert.Empty(t, out.Cancelled)

	st, _ := s.Status("h_1")
	assert.Equal(t, StatusPending, st)
}

func TestSubmitResult_Idempotent(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 2)
	a, _ := s.ClaimNext("m1")

	first, err := s.SubmitResult("m1", a.ID, "EX-3")
	require.NoError(t, err)
	second, err := s.SubmitResult("m1", a.ID, "EX-3")
	require.NoError(t, err)

	assert.Equal(t, first.Task.Status, second.Task.Status)
	assert.Equal(t, first.Task.Result, second.Task.Result)
	assert.False(t, second.Changed)

	// An empty resubmission must not regress completed to cancelled.
	third, err := s.SubmitResult("m1", a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, third.Task.Status)
}

func TestSubmitResult_NotAssigned(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 2)
	a, _ := s.ClaimNext("m1")

	_, err := s.SubmitResult("intruder", a.ID, "EX-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAssigned))

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusAssigned, got.Status)
	assert.Equal(t, "m1", got.AssignedTo)
	assert.Empty(t, got.Result)

	// Never-claimed task.
	_, err = s.SubmitResult("m1", "h_1", "EX-7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAssigned))
	st, _ := s.Status("h_1")
	assert.Equal(t, StatusPending, st)

	_, err = s.SubmitResult("m1", "nope", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFail(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 1)
	a, _ := s.ClaimNext("m1")

	_, err := s.Fail("m2", a.ID, "boom")
	assert.True(t, errors.Is(err, ErrNotAssigned))

	out, err := s.Fail("m1", a.ID, "encoder panic")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Task.Status)
	assert.Equal(t, "encoder panic", out.Task.Error)

	again, err := s.SubmitResult("m1", a.ID, "late")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, again.Task.Status)
}

func TestRequeue(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("h", partition.Range{Start: 0, End: 9}, 3)
	a, _ := s.ClaimNext("m1")
	b, _ := s.ClaimNext("m2")
	c, _ := s.ClaimNext("m1")
	_, err := s.SubmitResult("m1", c.ID, "")
	require.NoError(t, err)

	ids := s.Requeue("m1")
	assert.Equal(t, []string{a.ID}, ids)

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.AssignedTo)

	got, _ = s.Get(b.ID)
	assert.Equal(t, StatusAssigned, got.Status)

	got, _ = s.Get(c.ID)
	assert.Equal(t, StatusCancelled, got.Status, "terminal tasks are never requeued")

	// The requeued task is claimable again, ahead of nothing else.
	again, ok := s.ClaimNext("m3")
	require.True(t, ok)
	assert.Equal(t, a.ID, again.ID)

	// The dead minion can no longer report on it.
	_, err = s.SubmitResult("m1", a.ID, "x")
	assert.True(t, errors.Is(err, ErrNotAssigned))
}

func TestCountsAndSummaries(t *testing.T) {
	s := newStore()
	_, _ = s.SubmitHash("a", partition.Range{Start: 0, End: 9}, 2)
	_, _ = s.SubmitHash("b", partition.Range{Start: 0, End: 9}, 1)
	ta, _ := s.ClaimNext("m1")
	_, _ = s.SubmitResult("m1", ta.ID, "hit")

	counts := s.Counts()
	assert.Equal(t, 1, counts[StatusCompleted])
	assert.Equal(t, 1, counts[StatusCancelled])
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 0, counts[StatusFailed])
	assert.Len(t, counts, 5)

	sums := s.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "a", sums[0].HashValue)
	assert.Equal(t, "hit", sums[0].Result)
	assert.Equal(t, "b", sums[1].HashValue)
	assert.False(t, sums[1].Done())

	_, err := s.Summary("zzz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAssigned.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, Status("bogus").Valid())
}
