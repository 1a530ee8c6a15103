package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits one complete line.
type Writer interface {
	WriteTask(ctx context.Context, task *taskstore.Task) error
	WriteMinion(ctx context.Context, minion *directory.Record) error
	WriteHash(ctx context.Context, hash *taskstore.HashSummary) error
	WriteSlice(ctx context.Context, slice *SliceRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
// Writes are serialized so lines never interleave.
type JSONLWriter struct {
	w      io.Writer
	source string
	now    func() time.Time
	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter creates a writer stamping every record with source.
func NewJSONLWriter(w io.Writer, source string) *JSONLWriter {
	return &JSONLWriter{w: w, source: source, now: time.Now}
}

func (jw *JSONLWriter) WriteTask(ctx context.Context, task *taskstore.Task) error {
	return jw.writeRecord(ctx, TypeTask, task)
}

func (jw *JSONLWriter) WriteMinion(ctx context.Context, minion *directory.Record) error {
	return jw.writeRecord(ctx, TypeMinion, minion)
}

func (jw *JSONLWriter) WriteHash(ctx context.Context, hash *taskstore.HashSummary) error {
	return jw.writeRecord(ctx, TypeHash, hash)
}

func (jw *JSONLWriter) WriteSlice(ctx context.Context, slice *SliceRecord) error {
	return jw.writeRecord(ctx, TypeSlice, slice)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// Close marks the writer as closed. The underlying writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	recordBytes, err := json.Marshal(Record{
		Type:   recordType,
		TS:     jw.now().UTC(),
		Source: jw.source,
		Data:   dataBytes,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may report a short write with a nil error; a truncated
	// line would corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
