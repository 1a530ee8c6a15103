// Package api defines the JSON wire schemas shared by the coordinator and minions.
package api

import (
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// Route paths served by the coordinator.
const (
	PathRegister      = "/register"
	PathHeartbeat     = "/minions/{minion_id}/heartbeat"
	PathDisconnect    = "/disconnect-minion"
	PathMinions       = "/minions"
	PathUploadHashes  = "/upload-hashes"
	PathGetTask       = "/get-task"
	PathTaskStatus    = "/task-status"
	PathSubmitResult  = "/submit-result"
	PathFailTask      = "/fail-task"
	PathAllTasks      = "/all-tasks"
	PathStatus        = "/status"
	PathVersion       = "/version"
	UploadFormField   = "file"
	QueryMinionID     = "minion_id"
	QueryTaskID       = "task_id"
	StatusSuccess     = "success"
	HeartbeatTemplate = "/minions/%s/heartbeat"
)

// RegisterRequest announces a minion to the coordinator.
type RegisterRequest struct {
	MinionID     string   `json:"minion_id"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Capabilities []string `json:"capabilities"`
}

// DisconnectRequest removes a minion from the active pool.
type DisconnectRequest struct {
	MinionID string `json:"minion_id"`
}

// Ack is the generic success response.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// MinionsResponse lists registered minions.
type MinionsResponse struct {
	Minions []directory.Record `json:"minions"`
}

// UploadResponse reports the outcome of a hash submission.
type UploadResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Hashes  []string `json:"hashes"`
	Tasks   int      `json:"tasks"`
	Slices  int      `json:"slices"`
}

// TaskAssignment is handed to a minion after a successful claim.
type TaskAssignment struct {
	TaskID    string `json:"task_id"`
	HashValue string `json:"hash_value"`
	Algorithm string `json:"algorithm"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	StartStr  string `json:"start_str"`
	EndStr    string `json:"end_str"`
	Keyspace  string `json:"keyspace"`
}

// TaskStatusResponse reports the status of one task.
type TaskStatusResponse struct {
	TaskID     string           `json:"task_id"`
	Status     taskstore.Status `json:"status"`
	AssignedTo string           `json:"assigned_to,omitempty"`
}

// SubmitResultRequest reports the outcome of a slice search.
// An empty Result means the slice was exhausted without a match.
type SubmitResultRequest struct {
	MinionID string `json:"minion_id"`
	TaskID   string `json:"task_id"`
	Result   string `json:"result"`
}

// FailTaskRequest reports an unrecoverable worker-side error.
type FailTaskRequest struct {
	MinionID string `json:"minion_id"`
	TaskID   string `json:"task_id"`
	Reason   string `json:"reason"`
}

// TaskUpdateResponse reports a task's state after a submission.
type TaskUpdateResponse struct {
	Status    string           `json:"status"`
	TaskID    string           `json:"task_id"`
	NewStatus taskstore.Status `json:"new_status"`
	Cancelled []string         `json:"cancelled,omitempty"`
}

// AllTasksResponse maps task ids to tasks.
type AllTasksResponse struct {
	Tasks map[string]taskstore.Task `json:"tasks"`
}

// StatusResponse is the aggregate coordinator view.
type StatusResponse struct {
	Minions []directory.Record       `json:"minions" yaml:"minions"`
	Tasks   []taskstore.Task         `json:"tasks" yaml:"tasks"`
	Counts  map[taskstore.Status]int `json:"counts" yaml:"counts"`
	Hashes  []taskstore.HashSummary  `json:"hashes" yaml:"hashes"`
	Config  *CoordinatorInfo         `json:"config,omitempty" yaml:"config,omitempty"`
}

// CoordinatorInfo describes the keyspace and digest the coordinator serves.
type CoordinatorInfo struct {
	Keyspace  string `json:"keyspace" yaml:"keyspace"`
	MinValue  int64  `json:"min_value" yaml:"min_value"`
	MaxValue  int64  `json:"max_value" yaml:"max_value"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
}

// VersionResponse is served at /version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}
