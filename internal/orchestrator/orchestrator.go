// Package orchestrator routes tasks to capability adapters and executes
// them under a shared concurrency gate with per-task deadlines, emitting
// lifecycle events for every execution.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"thoth/internal/adapter"
	"thoth/internal/async"
	"thoth/internal/config"
	thotherrors "thoth/internal/errors"
	"thoth/internal/eventbus"
	"thoth/internal/logging"
	"thoth/internal/observability"
	"thoth/internal/registry"
	"thoth/internal/safety"
	"thoth/internal/task"
)

// MetadataAgent is the task metadata key that pins a task to a named
// adapter, bypassing capability routing.
const MetadataAgent = "agent"

// Orchestrator is the execution engine. All fields are set at construction;
// only the inflight bookkeeping mutates afterwards.
type Orchestrator struct {
	registry *registry.Registry
	bus      *eventbus.Bus
	gate     *semaphore.Weighted
	timeout  time.Duration
	fallback Fallback
	safety   *safety.Layer
	metrics  *observability.MetricsCollector
	logger   logging.Logger

	mu       sync.Mutex
	closed   bool
	inflight map[uint64]context.CancelFunc
	nextID   uint64
	wg       sync.WaitGroup
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithSafety wires the safety layer. Mutating capabilities then execute
// under checkpoint/compensator protection.
func WithSafety(layer *safety.Layer) Option {
	return func(o *Orchestrator) { o.safety = layer }
}

// WithMetrics records execution counts and durations.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithFallback replaces the default type-substring fallback table.
func WithFallback(fallback Fallback) Option {
	return func(o *Orchestrator) { o.fallback = fallback }
}

// New creates an orchestrator over a registry and event bus.
func New(reg *registry.Registry, bus *eventbus.Bus, cfg *config.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	limit := cfg.MaxConcurrentTasks
	if limit <= 0 {
		limit = config.DefaultMaxConcurrentTasks
	}

	o := &Orchestrator{
		registry: reg,
		bus:      bus,
		gate:     semaphore.NewWeighted(int64(limit)),
		timeout:  cfg.DefaultTaskTimeout,
		fallback: DefaultFallback(),
		logger:   logging.NewComponentLogger("Orchestrator"),
		inflight: make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecOption adjusts one ExecuteTask call.
type ExecOption func(*execOptions)

type execOptions struct {
	agent   string
	timeout time.Duration
}

// WithAgent routes the task to a named adapter instead of by capability.
func WithAgent(name string) ExecOption {
	return func(e *execOptions) { e.agent = name }
}

// WithTimeout overrides the default per-task deadline. Zero disables the
// deadline entirely.
func WithTimeout(d time.Duration) ExecOption {
	return func(e *execOptions) { e.timeout = d }
}

// ExecuteTask routes a task to an adapter and runs it to completion.
//
// Routing and safety rejections surface synchronously before the task ever
// holds a concurrency slot. A deadline overrun cancels the in-flight call
// and returns a TaskTimeoutError rather than a Result, so callers can tell
// "ran and failed" apart from "never finished". Exactly one terminal event
// follows task.started: task.completed, task.failed, or task.timeout.
func (o *Orchestrator) ExecuteTask(ctx context.Context, t *task.Task, opts ...ExecOption) (*task.Result, error) {
	options := execOptions{timeout: o.timeout}
	for _, opt := range opts {
		opt(&options)
	}
	if options.agent == "" {
		options.agent = t.Metadata[MetadataAgent]
	}

	exec, err := o.route(t, options.agent)
	if err != nil {
		return nil, err
	}
	cap, ok := exec.Capability(t.Type)
	if !ok {
		return nil, &thotherrors.UnsupportedCapabilityError{Adapter: exec.Name(), TaskType: t.Type}
	}
	if err := o.safety.Validate(t, cap); err != nil {
		return nil, err
	}

	runCtx, finish, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer finish()

	if err := o.gate.Acquire(runCtx, 1); err != nil {
		return nil, fmt.Errorf("orchestrator: acquire execution slot: %w", err)
	}
	defer o.gate.Release(1)

	o.metrics.TaskStarted(runCtx)
	defer o.metrics.TaskFinished(runCtx)

	t.Status = task.StatusRunning
	o.publish("task.started", map[string]any{
		"task_id":   t.ID,
		"task_type": t.Type,
		"agent":     exec.Name(),
	})

	execCtx := runCtx
	if options.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(runCtx, options.timeout)
		defer cancel()
	}

	start := time.Now()
	result, execErr := o.await(execCtx, t, cap, exec)
	took := time.Since(start)

	switch {
	case errors.Is(execErr, context.DeadlineExceeded):
		t.Status = task.StatusTimedOut
		o.publish("task.timeout", map[string]any{
			"task_id":   t.ID,
			"task_type": t.Type,
			"timeout":   options.timeout.String(),
		})
		o.metrics.RecordTaskExecution(ctx, t.Type, "timeout", took)
		return nil, &thotherrors.TaskTimeoutError{TaskID: t.ID, Timeout: options.timeout}

	case execErr != nil:
		t.Status = task.StatusFailed
		o.publish("task.failed", map[string]any{
			"task_id":   t.ID,
			"task_type": t.Type,
			"error":     execErr.Error(),
		})
		o.metrics.RecordTaskExecution(ctx, t.Type, "failed", took)
		return nil, execErr

	case !result.Succeeded():
		t.Status = task.StatusFailed
		o.publish("task.failed", map[string]any{
			"task_id":   t.ID,
			"task_type": t.Type,
			"error":     result.Error,
		})
		o.metrics.RecordTaskExecution(ctx, t.Type, "failed", took)
		return result, nil

	default:
		t.Status = task.StatusCompleted
		o.publish("task.completed", map[string]any{
			"task_id":      t.ID,
			"task_type":    t.Type,
			"execution_ms": took.Milliseconds(),
		})
		o.metrics.RecordTaskExecution(ctx, t.Type, "completed", took)
		return result, nil
	}
}

// route resolves the executing adapter: explicit agent pin, then the
// capability index, then the fallback table.
func (o *Orchestrator) route(t *task.Task, agentName string) (adapter.Executor, error) {
	if agentName != "" {
		return o.registry.Get(agentName)
	}
	if names := o.registry.FindByCapability(t.Type); len(names) > 0 {
		return o.registry.Get(names[0])
	}
	if name, ok := o.fallback.Resolve(t.Type); ok {
		if exec, err := o.registry.Get(name); err == nil {
			return exec, nil
		}
	}
	return nil, &thotherrors.NoAgentForTaskError{TaskType: t.Type, Available: o.registry.Capabilities()}
}

// begin registers an execution for shutdown cancellation. The returned
// finish func must run on every exit path.
func (o *Orchestrator) begin(ctx context.Context) (context.Context, func(), error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, nil, fmt.Errorf("orchestrator: shutting down")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.nextID++
	id := o.nextID
	o.inflight[id] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	finish := func() {
		o.mu.Lock()
		delete(o.inflight, id)
		o.mu.Unlock()
		cancel()
		o.wg.Done()
	}
	return runCtx, finish, nil
}

type outcome struct {
	result *task.Result
	err    error
}

// await runs the adapter call in its own goroutine so a provider that
// ignores cancellation cannot hold the caller past the deadline. The
// abandoned call still sees a cancelled context.
func (o *Orchestrator) await(ctx context.Context, t *task.Task, cap adapter.Capability, exec adapter.Executor) (*task.Result, error) {
	done := make(chan outcome, 1)
	async.Go(o.logger, "execute "+t.ID, func() {
		result, err := o.invoke(ctx, t, cap, exec)
		done <- outcome{result: result, err: err}
	})

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invoke dispatches through the safety layer for mutating capabilities. The
// closure handed to Protect goes straight to the adapter, so a rollback's
// compensator never re-enters the concurrency gate.
func (o *Orchestrator) invoke(ctx context.Context, t *task.Task, cap adapter.Capability, exec adapter.Executor) (*task.Result, error) {
	if cap.Mutating && o.safety.Enabled() {
		result, _, err := o.safety.Protect(ctx, t, cap, func(ctx context.Context, tsk *task.Task) (*task.Result, error) {
			return exec.Execute(ctx, tsk)
		})
		return result, err
	}
	return exec.Execute(ctx, t)
}

// Shutdown cancels every running execution and waits for them to drain. New
// submissions are rejected from the first call onward.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	cancels := make([]context.CancelFunc, 0, len(o.inflight))
	for _, cancel := range o.inflight {
		cancels = append(cancels, cancel)
	}
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) publish(eventType string, data map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventType, data, "orchestrator")
}
