package models

import "time"

// TaskStatus is the lifecycle state of one analysis task
type TaskStatus string

const (
	// TaskStatusPending means the task has not started
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress means the task is being worked on; at most one
	// task per session may hold this status
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed means the task was abandoned after errors
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped means the task was cancelled without being executed
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsValid checks if the task status is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the task needs no further work
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusSkipped
}

// TaskType classifies what kind of work a task represents
type TaskType string

const (
	TaskTypeDataExploration TaskType = "data_exploration"
	TaskTypeAnalysis        TaskType = "analysis"
	TaskTypeVisualization   TaskType = "visualization"
	TaskTypeReport          TaskType = "report"
)

// IsValid checks if the task type is valid
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeDataExploration, TaskTypeAnalysis, TaskTypeVisualization, TaskTypeReport:
		return true
	default:
		return false
	}
}

// Task is one entry in a session's ordered task list. IDs are unique and
// immutable within a session; list order is both presentation and default
// execution order.
type Task struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`

	// Code is the last run_code snippet attributed to this task.
	Code string `json:"code,omitempty"`
	// Error is set when the task reached failed status.
	Error string `json:"error,omitempty"`
	// Result is a short textual summary of what the task produced.
	Result string `json:"result,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Image is a chart produced by a code execution, owned by the session.
type Image struct {
	TaskID      int    `json:"task_id"`
	TaskName    string `json:"task_name,omitempty"`
	ImageBase64 string `json:"image_base64"`
}
