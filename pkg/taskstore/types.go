package taskstore

import "time"

// Status is the lifecycle state of a hash task.
//
// NOTE: These values are part of the wire protocol.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusAssigned, StatusCompleted, StatusCancelled, StatusFailed}
}

// Task is one (target hash, keyspace slice) unit of work.
//
// Start and End are inclusive. Result is empty until the slice yields the
// match; it stays empty for slices that are exhausted or cancelled.
type Task struct {
	ID         string    `json:"task_id" yaml:"task_id"`
	HashValue  string    `json:"hash_value" yaml:"hash_value"`
	SliceIndex int       `json:"slice_index" yaml:"slice_index"`
	Start      int64     `json:"start" yaml:"start"`
	End        int64     `json:"end" yaml:"end"`
	Status     Status    `json:"status" yaml:"status"`
	AssignedTo string    `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	Result     string    `json:"result,omitempty" yaml:"result,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// HashSummary aggregates the tasks of one target hash.
type HashSummary struct {
	HashValue string         `json:"hash_value" yaml:"hash_value"`
	Result    string         `json:"result,omitempty" yaml:"result,omitempty"`
	FoundBy   string         `json:"found_by,omitempty" yaml:"found_by,omitempty"`
	Tasks     int            `json:"tasks" yaml:"tasks"`
	Counts    map[Status]int `json:"counts" yaml:"counts"`
}

// Done reports whether every task of the hash reached a terminal state.
func (h HashSummary) Done() bool {
	return h.Counts[StatusPending] == 0 && h.Counts[StatusAssigned] == 0
}
