package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnsupportedCapabilityError indicates a task type absent from an adapter's
// capability map. This is a configuration error, never wrapped in a Result.
type UnsupportedCapabilityError struct {
	Adapter  string
	TaskType string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("adapter %q does not support task type %q", e.Adapter, e.TaskType)
}

// AgentNotFoundError indicates a direct registry lookup by name failed.
type AgentNotFoundError struct {
	Name string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent not found: %s", e.Name)
}

// NoAgentForTaskError indicates no registered adapter can handle a task type,
// even after the fallback table was consulted. Available carries the
// capabilities registered at lookup time so the message is actionable.
type NoAgentForTaskError struct {
	TaskType  string
	Available []string
}

func (e *NoAgentForTaskError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("no agent for task type %q (no capabilities registered)", e.TaskType)
	}
	return fmt.Sprintf("no agent for task type %q (available: %s)", e.TaskType, strings.Join(e.Available, ", "))
}

// TaskTimeoutError is a distinct signal from a failure Result: the task never
// finished, so no outcome exists.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

// ProviderFailureError wraps an error raised by a capability provider. It is
// always captured inside the adapter and carried on a failure Result; it
// never propagates to the orchestrator as a raw error.
type ProviderFailureError struct {
	Operation string
	Err       error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("provider operation %q failed: %v", e.Operation, e.Err)
}

func (e *ProviderFailureError) Unwrap() error { return e.Err }

// SafetyViolationError aborts a task before it reaches the concurrency gate.
type SafetyViolationError struct {
	TaskID string
	Reason string
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("safety violation for task %s: %s", e.TaskID, e.Reason)
}

// UnintendedSideEffectError reports observable state drift outside the
// declared footprint of a mutating task. The safety layer raises it after
// executing the compensator; RolledBack reports whether pre-task state was
// restored.
type UnintendedSideEffectError struct {
	TaskID       string
	AffectedKeys []string
	RolledBack   bool
	RollbackErr  error
}

func (e *UnintendedSideEffectError) Error() string {
	msg := fmt.Sprintf("unintended side effect from task %s on keys [%s]", e.TaskID, strings.Join(e.AffectedKeys, ", "))
	if e.RolledBack {
		return msg + " (rolled back)"
	}
	if e.RollbackErr != nil {
		return msg + fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	}
	return msg
}

// IsUnsupportedCapability reports whether err is an UnsupportedCapabilityError.
func IsUnsupportedCapability(err error) bool {
	var target *UnsupportedCapabilityError
	return errors.As(err, &target)
}

// IsAgentNotFound reports whether err is an AgentNotFoundError.
func IsAgentNotFound(err error) bool {
	var target *AgentNotFoundError
	return errors.As(err, &target)
}

// IsNoAgentForTask reports whether err is a NoAgentForTaskError.
func IsNoAgentForTask(err error) bool {
	var target *NoAgentForTaskError
	return errors.As(err, &target)
}

// IsTaskTimeout reports whether err is a TaskTimeoutError.
func IsTaskTimeout(err error) bool {
	var target *TaskTimeoutError
	return errors.As(err, &target)
}

// IsSafetyViolation reports whether err is a SafetyViolationError.
func IsSafetyViolation(err error) bool {
	var target *SafetyViolationError
	return errors.As(err, &target)
}

// IsUnintendedSideEffect reports whether err is an UnintendedSideEffectError.
func IsUnintendedSideEffect(err error) bool {
	var target *UnintendedSideEffectError
	return errors.As(err, &target)
}
