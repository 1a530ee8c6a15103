package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var records []Record
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, sc.Err())
	return records
}

func TestJSONLWriter_WriteTask(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "http://localhost:8000")
	w.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }

	task := &taskstore.Task{
		ID:         "abc_0",
		HashValue:  "abc",
		SliceIndex: 0,
		Start:      0,
		End:        9,
		Status:     taskstore.StatusAssigned,
		AssignedTo: "m1",
	}
	require.NoError(t, w.WriteTask(context.Background(), task))

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeTask, record.Type)
	assert.Equal(t, "http://localhost:8000", record.Source)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), record.TS)

	var got taskstore.Task
	require.NoError(t, json.Unmarshal(record.Data, &got))
	assert.Equal(t, "abc_0", got.ID)
	assert.Equal(t, taskstore.StatusAssigned, got.Status)
	assert.Equal(t, "m1", got.AssignedTo)
}

func TestJSONLWriter_RecordTypes(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "local")
	ctx := context.Background()

	require.NoError(t, w.WriteMinion(ctx, &directory.Record{ID: "m1"}))
	require.NoError(t, w.WriteHash(ctx, &taskstore.HashSummary{HashValue: "abc"}))
	require.NoError(t, w.WriteSlice(ctx, &SliceRecord{Index: 1, Start: 5, End: 9, Size: 5}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Tasks: 3}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodeNotFound, Message: "gone"}))

	records := decodeLines(t, &buf)
	require.Len(t, records, 5)
	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, r.Type)
	}
	assert.Equal(t, []string{TypeMinion, TypeHash, TypeSlice, TypeSummary, TypeError}, types)

	var slice SliceRecord
	require.NoError(t, json.Unmarshal(records[2].Data, &slice))
	assert.Equal(t, int64(5), slice.Size)
}

func TestJSONLWriter_Closed(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "local")
	require.NoError(t, w.Close())

	err := w.WriteSummary(context.Background(), &SummaryRecord{})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Zero(t, buf.Len())
}

func TestJSONLWriter_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "local")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.WriteTask(ctx, &taskstore.Task{}), context.Canceled)
	assert.Zero(t, buf.Len())
}

type shortWriter struct {
	buf bytes.Buffer
}

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) > 7 {
		p = p[:7]
	}
	return s.buf.Write(p)
}

func TestJSONLWriter_ShortWrites(t *testing.T) {
	sw := &shortWriter{}
	w := NewJSONLWriter(sw, "local")
	require.NoError(t, w.WriteError(context.Background(), &ErrorRecord{Code: ErrCodeInternal, Message: "boom"}))

	line := sw.buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	var r Record
	require.NoError(t, json.Unmarshal([]byte(line), &r))
	assert.Equal(t, TypeError, r.Type)
}

type zeroWriter struct{}

func (zeroWriter) Write([]byte) (int, error) { return 0, nil }

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLWriter_WriteFailures(t *testing.T) {
	err := NewJSONLWriter(zeroWriter{}, "local").WriteSummary(context.Background(), &SummaryRecord{})
	assert.ErrorIs(t, err, io.ErrShortWrite)

	err = NewJSONLWriter(failWriter{}, "local").WriteSummary(context.Background(), &SummaryRecord{})
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "write", we.Op)
}

func TestJSONLWriter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "local")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.WriteTask(context.Background(), &taskstore.Task{ID: "t"}))
		}()
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 50)
}

func TestWriteSnapshot(t *testing.T) {
	snap := api.StatusResponse{
		Minions: []directory.Record{
			{ID: "m1", Status: directory.StatusActive},
			{ID: "m2", Status: directory.StatusDisconnected},
		},
		Tasks: []taskstore.Task{
			{ID: "a_0", Status: taskstore.StatusCompleted, Result: "x"},
			{ID: "a_1", Status: taskstore.StatusCancelled},
			{ID: "b_0", Status: taskstore.StatusPending},
		},
		Counts: map[taskstore.Status]int{
			taskstore.StatusCompleted: 1,
			taskstore.StatusCancelled: 1,
			taskstore.StatusPending:   1,
		},
		Hashes: []taskstore.HashSummary{
			{HashValue: "a", Result: "x", Tasks: 2},
			{HashValue: "b", Tasks: 1},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(context.Background(), NewJSONLWriter(&buf, "local"), snap))

	records := decodeLines(t, &buf)
	require.Len(t, records, 2+2+3+1)
	last := records[len(records)-1]
	assert.Equal(t, TypeSummary, last.Type)

	var sum SummaryRecord
	require.NoError(t, json.Unmarshal(last.Data, &sum))
	assert.Equal(t, 2, sum.Minions)
	assert.Equal(t, 1, sum.ActiveMinions)
	assert.Equal(t, 3, sum.Tasks)
	assert.Equal(t, 2, sum.Hashes)
	assert.Equal(t, 1, sum.Cracked)
	assert.Equal(t, 1, sum.Counts[taskstore.StatusPending])
}
