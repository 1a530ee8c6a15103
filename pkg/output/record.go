// Package output writes coordinator state as JSONL records.
//
// Each line is a self-contained envelope whose type field says how to read
// the data payload, so the output can be piped into jq or a log shipper.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/gocrack/pkg/taskstore"
)

// Record type constants follow the pattern gocrack.<type>.v<version>.
const (
	TypeTask    = "gocrack.task.v1"
	TypeMinion  = "gocrack.minion.v1"
	TypeHash    = "gocrack.hash.v1"
	TypeSlice   = "gocrack.slice.v1"
	TypeSummary = "gocrack.summary.v1"
	TypeError   = "gocrack.error.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// Source identifies where the data came from, usually the coordinator
	// URL.
	Source string `json:"source"`

	Data json.RawMessage `json:"data"`
}

// SliceRecord describes one planned slice of a keyspace.
type SliceRecord struct {
	Index    int    `json:"index"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	StartStr string `json:"start_str,omitempty"`
	EndStr   string `json:"end_str,omitempty"`
	Size     int64  `json:"size"`
}

// SummaryRecord aggregates a status snapshot.
type SummaryRecord struct {
	Minions       int                      `json:"minions"`
	ActiveMinions int                      `json:"active_minions"`
	Tasks         int                      `json:"tasks"`
	Counts        map[taskstore.Status]int `json:"counts"`
	Hashes        int                      `json:"hashes"`
	Cracked       int                      `json:"cracked"`
}

// ErrorRecord reports a failure without aborting the stream.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeUnavailable = "UNAVAILABLE"
	ErrCodeInternal    = "INTERNAL"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // marshal_data, marshal_record or write
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
