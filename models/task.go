package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of an async task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// SearchTask represents an async comparison run
type SearchTask struct {
	ID          string            `json:"id"`
	Query       string            `json:"query"`
	Status      TaskStatus        `json:"status"`
	Progress    int               `json:"progress"` // 0-100
	Message     string            `json:"message"`
	Result      *ComparisonResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// NewSearchTask creates a new queued search task
func NewSearchTask(query string) *SearchTask {
	return &SearchTask{
		ID:        "task_" + uuid.NewString(),
		Query:     query,
		Status:    TaskStatusQueued,
		Message:   "Task queued for processing",
		CreatedAt: time.Now(),
	}
}

// Start marks the task as processing
func (t *SearchTask) Start() {
	t.Status = TaskStatusProcessing
	t.Progress = 10
	t.Message = "Searching stores..."
	now := time.Now()
	t.StartedAt = &now
}

// Complete marks the task as completed with result
func (t *SearchTask) Complete(result *ComparisonResult) {
	t.Status = TaskStatusCompleted
	t.Progress = 100
	t.Message = "Comparison completed successfully"
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
}

// Fail marks the task as failed with error
func (t *SearchTask) Fail(reason string) {
	t.Status = TaskStatusFailed
	t.Progress = 0
	t.Message = "Comparison failed"
	t.Error = reason
	now := time.Now()
	t.CompletedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *SearchTask) IsCompleted() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsActive returns true if the task is still running
func (t *SearchTask) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Duration returns the duration of the task
func (t *SearchTask) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}

	endTime := time.Now()
	if t.CompletedAt != nil {
		endTime = *t.CompletedAt
	}

	return endTime.Sub(*t.StartedAt)
}
