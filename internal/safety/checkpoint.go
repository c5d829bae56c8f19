package safety

import (
	"context"
	"time"

	"thoth/internal/adapter"
	"thoth/internal/task"
)

// Compensator task param names. Providers implementing a compensating
// operation receive the footprint target under the capability's Footprint
// param plus these three keys.
const (
	ParamCheckpointValue   = "checkpoint_value"
	ParamCheckpointExisted = "checkpoint_existed"
	ParamCheckpointState   = "checkpoint_state"
)

// ObservableState exposes the externally observable state a mutating task
// may touch. Supplied by whoever composes the system; the safety layer only
// reads it.
type ObservableState interface {
	Snapshot(ctx context.Context) (map[string]string, error)
}

// Checkpoint is a pre-execution snapshot plus the inverse task able to undo
// the protected task's effect. It exists only for the duration of one
// protected execution and is consumed only on rollback.
type Checkpoint struct {
	TaskID      string
	TakenAt     time.Time
	State       map[string]string
	Compensator *task.Task
}

// newCheckpoint snapshots state and builds the compensator before the
// protected task runs.
func newCheckpoint(ctx context.Context, state ObservableState, t *task.Task, cap adapter.Capability, target string) (*Checkpoint, error) {
	snapshot, err := state.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	value, existed := snapshot[target]
	params := map[string]any{
		cap.Footprint:          target,
		ParamCheckpointValue:   value,
		ParamCheckpointExisted: existed,
		ParamCheckpointState:   snapshot,
	}

	return &Checkpoint{
		TaskID:      t.ID,
		TakenAt:     time.Now(),
		State:       snapshot,
		Compensator: task.New(cap.Compensator, params),
	}, nil
}

// drift returns the keys whose values differ between the checkpoint and a
// later snapshot, including keys that appeared or vanished.
func (c *Checkpoint) drift(after map[string]string) []string {
	var changed []string
	for key, before := range c.State {
		if now, ok := after[key]; !ok || now != before {
			changed = append(changed, key)
		}
	}
	for key := range after {
		if _, ok := c.State[key]; !ok {
			changed = append(changed, key)
		}
	}
	return changed
}

// restored reports whether a snapshot matches the checkpoint exactly.
func (c *Checkpoint) restored(after map[string]string) bool {
	if len(after) != len(c.State) {
		return false
	}
	for key, before := range c.State {
		if after[key] != before {
			return false
		}
	}
	return true
}
