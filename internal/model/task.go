package model

import "time"

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusError     TaskStatus = "error"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskProgress is the mutable progress object a running task hands back to
// pollers.
type TaskProgress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Percent     int    `json:"percent"`
	Description string `json:"description"`
}

// Task is a persisted background unit of work. Long reports and the
// register pipeline are dispatched as tasks and polled through this record.
//
// OptionsObject and ResultObject are stored as JSON; their shape depends on
// Type. A task marked error or cancelled externally terminates at the next
// progress-update point; partial outputs are discarded.
type Task struct {
	ID            string       `json:"id"`
	MasterUserID  string       `json:"masterUserId"`
	WorkerTaskID  string       `json:"workerTaskId,omitempty"`
	Type          string       `json:"type"`
	Status        TaskStatus   `json:"status"`
	Progress      TaskProgress `json:"progress"`
	OptionsObject string       `json:"optionsObject,omitempty"`
	ResultObject  string       `json:"resultObject,omitempty"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"createdAt,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt,omitempty"`
}
