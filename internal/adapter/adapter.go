package adapter

import (
	"context"
	"fmt"
	"sort"
	"time"

	thotherrors "thoth/internal/errors"
	"thoth/internal/task"
)

// OperationFunc is a single provider operation. The context carries the
// orchestrator's deadline and shutdown cancellation; providers must observe
// it promptly.
type OperationFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Provider exposes named operations. Provider lifetime is owned by whoever
// composes the system; adapters only borrow the reference.
type Provider interface {
	Operation(name string) (OperationFunc, bool)
}

// Capability maps one task type onto a provider operation.
//
// Mutating marks operations that change externally observable state; such
// entries must name a Compensator task type able to undo the effect, and a
// Footprint param whose value identifies the state key the operation is
// allowed to touch. Whether an entry is mutating is declared here, at
// registration time, never inferred from task content.
type Capability struct {
	Operation   string
	Mutating    bool
	Compensator string
	Footprint   string
}

// Executor is the uniform execution contract the registry and orchestrator
// work against. Decorators (result cache) wrap this interface.
type Executor interface {
	Name() string
	Execute(ctx context.Context, t *task.Task) (*task.Result, error)
	Capabilities() []string
	Capability(taskType string) (Capability, bool)
}

// Adapter wraps one capability provider behind the Task/Result contract.
type Adapter struct {
	name     string
	provider Provider
	caps     map[string]Capability
}

// New validates the capability map against the provider: every mapped
// operation must exist, and mutating entries must declare a compensator.
// Construction fails loudly on misconfiguration.
func New(name string, provider Provider, caps map[string]Capability) (*Adapter, error) {
	if name == "" {
		return nil, fmt.Errorf("adapter name is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("adapter %q: provider is required", name)
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("adapter %q: capability map is empty", name)
	}
	for taskType, cap := range caps {
		if _, ok := provider.Operation(cap.Operation); !ok {
			return nil, fmt.Errorf("adapter %q: capability %q maps to unknown operation %q", name, taskType, cap.Operation)
		}
		if cap.Mutating {
			if cap.Compensator == "" {
				return nil, fmt.Errorf("adapter %q: mutating capability %q has no compensator", name, taskType)
			}
			if _, ok := caps[cap.Compensator]; !ok {
				return nil, fmt.Errorf("adapter %q: compensator %q for capability %q is not itself a capability", name, cap.Compensator, taskType)
			}
		}
	}

	copied := make(map[string]Capability, len(caps))
	for k, v := range caps {
		copied[k] = v
	}
	return &Adapter{name: name, provider: provider, caps: copied}, nil
}

// Name returns the adapter's registry name.
func (a *Adapter) Name() string { return a.name }

// Capabilities returns the supported task types in sorted order.
func (a *Adapter) Capabilities() []string {
	types := make([]string, 0, len(a.caps))
	for t := range a.caps {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Capability returns the entry for a task type, for safety-layer inspection.
func (a *Adapter) Capability(taskType string) (Capability, bool) {
	cap, ok := a.caps[taskType]
	return cap, ok
}

// Execute maps the task onto its provider operation and awaits completion.
//
// An unmapped task type raises UnsupportedCapabilityError synchronously: that
// is a wiring mistake, not a task-data problem. Everything the provider does
// wrong, including panics, is captured as a failure Result so the
// orchestrator never observes a raw provider error.
func (a *Adapter) Execute(ctx context.Context, t *task.Task) (*task.Result, error) {
	cap, ok := a.caps[t.Type]
	if !ok {
		return nil, &thotherrors.UnsupportedCapabilityError{Adapter: a.name, TaskType: t.Type}
	}

	op, ok := a.provider.Operation(cap.Operation)
	if !ok {
		// Validated at construction; a provider swapping operations underneath
		// us is still a configuration error.
		return nil, &thotherrors.UnsupportedCapabilityError{Adapter: a.name, TaskType: t.Type}
	}

	start := time.Now()
	data, err := a.invoke(ctx, cap.Operation, op, t.Params)
	took := time.Since(start)

	if err != nil {
		failure := &thotherrors.ProviderFailureError{Operation: cap.Operation, Err: err}
		return task.NewFailure(t.ID, failure.Error(), took), nil
	}
	return task.NewSuccess(t.ID, data, took), nil
}

// invoke runs the operation with panic recovery so a misbehaving provider
// cannot crash an execution goroutine.
func (a *Adapter) invoke(ctx context.Context, opName string, op OperationFunc, params map[string]any) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("operation %q panicked: %v", opName, r)
		}
	}()
	return op(ctx, params)
}
