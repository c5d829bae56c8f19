package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNoAgentForTaskListsCapabilities(t *testing.T) {
	err := &NoAgentForTaskError{TaskType: "translate", Available: []string{"ocr", "summarize"}}
	msg := err.Error()
	for _, want := range []string{"translate", "ocr", "summarize"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestNoAgentForTaskEmptyRegistry(t *testing.T) {
	err := &NoAgentForTaskError{TaskType: "translate"}
	if !strings.Contains(err.Error(), "no capabilities registered") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestProviderFailureUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := &ProviderFailureError{Operation: "write_note", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected Unwrap to expose inner error")
	}
}

func TestClassifiersMatchWrappedErrors(t *testing.T) {
	timeout := fmt.Errorf("execute: %w", &TaskTimeoutError{TaskID: "task-1", Timeout: time.Second})
	if !IsTaskTimeout(timeout) {
		t.Fatalf("IsTaskTimeout should see through wrapping")
	}
	if IsSafetyViolation(timeout) {
		t.Fatalf("IsSafetyViolation matched a timeout error")
	}

	violation := fmt.Errorf("pre-check: %w", &SafetyViolationError{TaskID: "task-2", Reason: "forbidden target"})
	if !IsSafetyViolation(violation) {
		t.Fatalf("IsSafetyViolation should see through wrapping")
	}

	side := &UnintendedSideEffectError{TaskID: "task-3", AffectedKeys: []string{"notes/a"}, RolledBack: true}
	if !IsUnintendedSideEffect(side) {
		t.Fatalf("IsUnintendedSideEffect failed on direct value")
	}
	if !strings.Contains(side.Error(), "rolled back") {
		t.Fatalf("rolled back outcome not reflected in message: %s", side.Error())
	}
}
