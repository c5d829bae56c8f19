package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"thoth/internal/adapter"
	"thoth/internal/config"
	thotherrors "thoth/internal/errors"
	"thoth/internal/eventbus"
	"thoth/internal/logging"
	"thoth/internal/observability"
	"thoth/internal/task"
)

// Phase is one state of the protected-execution state machine. Committed and
// RolledBack are terminal.
type Phase string

const (
	PhaseProposed     Phase = "proposed"
	PhaseValidated    Phase = "validated"
	PhaseCheckpointed Phase = "checkpointed"
	PhaseExecuting    Phase = "executing"
	PhaseCommitted    Phase = "committed"
	PhaseRolledBack   Phase = "rolled_back"
)

// ExecFunc runs one task to completion. The layer uses it both for the
// protected task and, on rollback, for its compensator; the orchestrator
// passes a closure that goes straight to the adapter so the compensator
// never re-enters the concurrency gate.
type ExecFunc func(ctx context.Context, t *task.Task) (*task.Result, error)

// Protection is the execution record of one protected task. Tests and
// diagnostics read the phase trail; the layer itself only writes it.
type Protection struct {
	mu         sync.Mutex
	phase      Phase
	trail      []Phase
	checkpoint *Checkpoint
}

func newProtection() *Protection {
	p := &Protection{}
	p.advance(PhaseProposed)
	return p
}

func (p *Protection) advance(next Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = next
	p.trail = append(p.trail, next)
}

// Phase returns the current phase.
func (p *Protection) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Trail returns every phase visited, in order.
func (p *Protection) Trail() []Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Phase, len(p.trail))
	copy(out, p.trail)
	return out
}

// Checkpoint returns the checkpoint taken for this execution, nil before the
// Checkpointed phase.
func (p *Protection) Checkpoint() *Checkpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoint
}

// Layer validates tasks before execution and wraps mutating executions with
// checkpoint + compensator rollback.
type Layer struct {
	rules   config.SafetyConfig
	state   ObservableState
	bus     *eventbus.Bus
	metrics *observability.MetricsCollector
	logger  logging.Logger
}

// Option configures optional layer collaborators.
type Option func(*Layer)

// WithBus wires safety lifecycle events onto an event bus.
func WithBus(bus *eventbus.Bus) Option {
	return func(l *Layer) { l.bus = bus }
}

// WithMetrics records rollback counts.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(l *Layer) { l.metrics = metrics }
}

// WithLogger sets the layer logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Layer) { l.logger = logger }
}

// New creates a safety layer. state may be nil only when the safety level is
// off.
func New(rules config.SafetyConfig, state ObservableState, opts ...Option) (*Layer, error) {
	l := &Layer{rules: rules, state: state, logger: logging.NewComponentLogger("SafetyLayer")}
	for _, opt := range opts {
		opt(l)
	}
	if rules.Level != config.SafetyOff && state == nil {
		return nil, fmt.Errorf("safety: observable state is required at level %q", rules.Level)
	}
	return l, nil
}

// Enabled reports whether the layer participates in execution at all.
func (l *Layer) Enabled() bool {
	return l != nil && l.rules.Level != config.SafetyOff
}

// Validate runs the cheap synchronous permission check. A rejected task
// never reaches the concurrency gate.
func (l *Layer) Validate(t *task.Task, cap adapter.Capability) error {
	if !l.Enabled() {
		return nil
	}

	for _, forbidden := range l.rules.ForbiddenTypes {
		if t.Type == forbidden {
			return &thotherrors.SafetyViolationError{TaskID: t.ID, Reason: fmt.Sprintf("task type %q is forbidden", t.Type)}
		}
	}

	if !cap.Mutating {
		return nil
	}

	target, err := l.target(t, cap)
	if err != nil {
		return err
	}
	for _, prefix := range l.rules.ForbiddenTargets {
		if strings.HasPrefix(target, prefix) {
			return &thotherrors.SafetyViolationError{TaskID: t.ID, Reason: fmt.Sprintf("target %q matches forbidden prefix %q", target, prefix)}
		}
	}
	return nil
}

// target extracts the state key the task declares it will touch.
func (l *Layer) target(t *task.Task, cap adapter.Capability) (string, error) {
	if cap.Footprint == "" {
		return "", &thotherrors.SafetyViolationError{TaskID: t.ID, Reason: fmt.Sprintf("mutating capability %q declares no footprint param", t.Type)}
	}
	raw, ok := t.Params[cap.Footprint]
	if !ok {
		return "", &thotherrors.SafetyViolationError{TaskID: t.ID, Reason: fmt.Sprintf("missing footprint param %q", cap.Footprint)}
	}
	target, ok := raw.(string)
	if !ok || target == "" {
		return "", &thotherrors.SafetyViolationError{TaskID: t.ID, Reason: fmt.Sprintf("footprint param %q must be a non-empty string", cap.Footprint)}
	}
	return target, nil
}

// Protect executes a mutating task under the checkpoint/compensator state
// machine: Proposed -> Validated -> Checkpointed -> Executing ->
// {Committed | RolledBack}. RolledBack restores pre-task observable state.
func (l *Layer) Protect(ctx context.Context, t *task.Task, cap adapter.Capability, exec ExecFunc) (*task.Result, *Protection, error) {
	prot := newProtection()

	if !l.Enabled() {
		// Level off: run unprotected but keep the record honest.
		prot.advance(PhaseExecuting)
		result, err := exec(ctx, t)
		prot.advance(PhaseCommitted)
		return result, prot, err
	}

	if err := l.Validate(t, cap); err != nil {
		return nil, prot, err
	}
	prot.advance(PhaseValidated)

	target, err := l.target(t, cap)
	if err != nil {
		return nil, prot, err
	}

	checkpoint, err := newCheckpoint(ctx, l.state, t, cap, target)
	if err != nil {
		return nil, prot, fmt.Errorf("safety: checkpoint for task %s: %w", t.ID, err)
	}
	prot.mu.Lock()
	prot.checkpoint = checkpoint
	prot.mu.Unlock()
	prot.advance(PhaseCheckpointed)
	l.publish("safety.checkpoint", map[string]any{"task_id": t.ID, "task_type": t.Type, "target": target})

	prot.advance(PhaseExecuting)
	result, execErr := exec(ctx, t)

	after, snapErr := l.state.Snapshot(ctx)
	if snapErr != nil {
		// Without a post-state view no side-effect verdict is possible; fail
		// the execution rather than silently committing.
		return nil, prot, fmt.Errorf("safety: post-execution snapshot for task %s: %w", t.ID, snapErr)
	}

	unexpected := unexpectedDrift(checkpoint, after, target)
	if len(unexpected) == 0 {
		prot.advance(PhaseCommitted)
		return result, prot, execErr
	}

	if l.rules.Level == config.SafetyPermissive {
		l.logger.Warn("task %s drifted outside footprint %q (keys: %s), committing at permissive level",
			t.ID, target, strings.Join(unexpected, ", "))
		l.publish("safety.drift", map[string]any{"task_id": t.ID, "keys": unexpected})
		prot.advance(PhaseCommitted)
		return result, prot, execErr
	}

	rollbackErr := l.rollback(ctx, checkpoint, exec)
	prot.advance(PhaseRolledBack)
	if l.metrics != nil {
		l.metrics.RecordRollback(ctx, t.Type)
	}
	l.publish("safety.rolled_back", map[string]any{
		"task_id":  t.ID,
		"keys":     unexpected,
		"restored": rollbackErr == nil,
	})

	return nil, prot, &thotherrors.UnintendedSideEffectError{
		TaskID:       t.ID,
		AffectedKeys: unexpected,
		RolledBack:   rollbackErr == nil,
		RollbackErr:  rollbackErr,
	}
}

// rollback executes the compensator and verifies the pre-task state came
// back.
func (l *Layer) rollback(ctx context.Context, checkpoint *Checkpoint, exec ExecFunc) error {
	result, err := exec(ctx, checkpoint.Compensator)
	if err != nil {
		return fmt.Errorf("compensator execution: %w", err)
	}
	if result != nil && !result.Succeeded() {
		return fmt.Errorf("compensator failed: %s", result.Error)
	}

	after, err := l.state.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("post-rollback snapshot: %w", err)
	}
	if !checkpoint.restored(after) {
		return fmt.Errorf("state still differs from checkpoint after rollback")
	}
	return nil
}

func (l *Layer) publish(eventType string, data map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventType, data, "safety")
}

// unexpectedDrift filters checkpoint drift down to keys outside the declared
// footprint, sorted for stable messages.
func unexpectedDrift(checkpoint *Checkpoint, after map[string]string, target string) []string {
	var unexpected []string
	for _, key := range checkpoint.drift(after) {
		if key != target {
			unexpected = append(unexpected, key)
		}
	}
	sort.Strings(unexpected)
	return unexpected
}
