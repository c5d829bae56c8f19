package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	thotherrors "thoth/internal/errors"
	"thoth/internal/task"
)

// fakeProvider exposes operations from a plain map.
type fakeProvider struct {
	ops map[string]OperationFunc
}

func (p *fakeProvider) Operation(name string) (OperationFunc, bool) {
	op, ok := p.ops[name]
	return op, ok
}

func echoProvider() *fakeProvider {
	return &fakeProvider{ops: map[string]OperationFunc{
		"extract_text": func(_ context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"text": fmt.Sprintf("contents of %v", params["path"])}, nil
		},
		"always_fail": func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("scanner offline")
		},
		"always_panic": func(context.Context, map[string]any) (map[string]any, error) {
			panic("provider bug")
		},
	}}
}

func TestNewValidatesOperations(t *testing.T) {
	_, err := New("doc", echoProvider(), map[string]Capability{
		"ocr": {Operation: "no_such_operation"},
	})
	if err == nil {
		t.Fatalf("construction must fail for unknown operation")
	}
}

func TestNewRequiresCompensatorForMutating(t *testing.T) {
	provider := echoProvider()

	_, err := New("doc", provider, map[string]Capability{
		"write": {Operation: "extract_text", Mutating: true},
	})
	if err == nil {
		t.Fatalf("mutating capability without compensator must be rejected")
	}

	_, err = New("doc", provider, map[string]Capability{
		"write": {Operation: "extract_text", Mutating: true, Compensator: "undo", Footprint: "path"},
	})
	if err == nil {
		t.Fatalf("compensator pointing at unknown capability must be rejected")
	}

	_, err = New("doc", provider, map[string]Capability{
		"write": {Operation: "extract_text", Mutating: true, Compensator: "undo", Footprint: "path"},
		"undo":  {Operation: "extract_text"},
	})
	if err != nil {
		t.Fatalf("valid mutating capability rejected: %v", err)
	}
}

func TestExecuteUnsupportedTypeRaises(t *testing.T) {
	a, err := New("doc", echoProvider(), map[string]Capability{
		"ocr": {Operation: "extract_text"},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, execErr := a.Execute(context.Background(), task.New("translate", nil))
	if !thotherrors.IsUnsupportedCapability(execErr) {
		t.Fatalf("expected UnsupportedCapability, got %v", execErr)
	}
}

func TestExecuteSuccess(t *testing.T) {
	a, err := New("doc", echoProvider(), map[string]Capability{
		"ocr": {Operation: "extract_text"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, execErr := a.Execute(context.Background(), task.New("ocr", map[string]any{"path": "a.pdf"}))
	if execErr != nil {
		t.Fatalf("unexpected error: %v", execErr)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Data["text"] != "contents of a.pdf" {
		t.Fatalf("unexpected data: %v", result.Data)
	}
}

func TestExecuteProviderErrorBecomesFailureResult(t *testing.T) {
	a, err := New("doc", echoProvider(), map[string]Capability{
		"scan": {Operation: "always_fail"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, execErr := a.Execute(context.Background(), task.New("scan", nil))
	if execErr != nil {
		t.Fatalf("provider failure must not surface as error, got %v", execErr)
	}
	if result.Succeeded() || result.Error == "" {
		t.Fatalf("expected failure result with message, got %+v", result)
	}
}

func TestExecuteProviderPanicBecomesFailureResult(t *testing.T) {
	a, err := New("doc", echoProvider(), map[string]Capability{
		"scan": {Operation: "always_panic"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, execErr := a.Execute(context.Background(), task.New("scan", nil))
	if execErr != nil {
		t.Fatalf("panic must be captured, got error %v", execErr)
	}
	if result.Succeeded() {
		t.Fatalf("panicking provider produced success: %+v", result)
	}
}

func TestCapabilitiesSorted(t *testing.T) {
	a, err := New("doc", echoProvider(), map[string]Capability{
		"ocr":      {Operation: "extract_text"},
		"citation": {Operation: "extract_text"},
	})
	if err != nil {
		t.Fatal(err)
	}
	caps := a.Capabilities()
	if len(caps) != 2 || caps[0] != "citation" || caps[1] != "ocr" {
		t.Fatalf("capabilities not sorted: %v", caps)
	}
}
