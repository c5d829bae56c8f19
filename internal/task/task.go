package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status tracks a task through its lifecycle. Only Status mutates after a
// task is created.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Task is a typed unit-of-work request. The ID is globally unique and
// immutable; Params and Metadata are set at creation and read thereafter.
type Task struct {
	ID        string            `json:"id" yaml:"id"`
	Type      string            `json:"type" yaml:"type"`
	Params    map[string]any    `json:"params" yaml:"params"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Status    Status            `json:"status" yaml:"status"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// New creates a pending task with a generated id.
func New(taskType string, params map[string]any) *Task {
	if params == nil {
		params = make(map[string]any)
	}
	return &Task{
		ID:        fmt.Sprintf("task-%s", uuid.New().String()),
		Type:      taskType,
		Params:    params,
		Metadata:  make(map[string]string),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// WithMetadata attaches a metadata entry and returns the task for chaining
// during construction. Not safe to call once the task is submitted.
func (t *Task) WithMetadata(key, value string) *Task {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[key] = value
	return t
}

// UsePrevious reports whether this task declared a dependency on the previous
// workflow step's result.
func (t *Task) UsePrevious() bool {
	v, ok := t.Params["use_previous"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ResultStatus distinguishes an execution that ran and succeeded from one
// that ran and failed. A task that never finished has no Result at all.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
)

// Result is the outcome of executing one task. Exactly one Result exists per
// execution attempt. TaskID is a back-reference, not ownership.
type Result struct {
	TaskID        string         `json:"task_id"`
	Status        ResultStatus   `json:"status"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// NewSuccess builds a success result for the given task.
func NewSuccess(taskID string, data map[string]any, took time.Duration) *Result {
	return &Result{
		TaskID:        taskID,
		Status:        ResultSuccess,
		Data:          data,
		ExecutionTime: took,
		CompletedAt:   time.Now(),
	}
}

// NewFailure builds a failure result carrying the provider error message.
func NewFailure(taskID string, errMsg string, took time.Duration) *Result {
	return &Result{
		TaskID:        taskID,
		Status:        ResultFailure,
		Error:         errMsg,
		ExecutionTime: took,
		CompletedAt:   time.Now(),
	}
}

// Succeeded reports whether the result carries a success status.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess
}
