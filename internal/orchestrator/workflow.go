package orchestrator

import (
	"context"

	"thoth/internal/task"
)

// ParamPreviousData is the params key under which a dependent step receives
// the previous step's result data.
const ParamPreviousData = "previous_data"

// ExecuteWorkflow runs tasks strictly in order. A step that declared a
// previous-result dependency gets the prior result's data injected into its
// params before execution. With stopOnFailure, a failure result halts the
// run and the unexecuted steps are omitted from the returned list.
//
// Routing errors and timeouts abort the workflow and propagate; the results
// executed so far are still returned.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, tasks []*task.Task, stopOnFailure bool) ([]*task.Result, error) {
	results := make([]*task.Result, 0, len(tasks))
	var previous *task.Result

	for _, t := range tasks {
		if t.UsePrevious() && previous != nil {
			t.Params[ParamPreviousData] = previous.Data
		}

		result, err := o.ExecuteTask(ctx, t)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		previous = result

		if stopOnFailure && !result.Succeeded() {
			break
		}
	}
	return results, nil
}

// RunWorkflow executes a loaded workflow definition, bracketed by workflow
// lifecycle events.
func (o *Orchestrator) RunWorkflow(ctx context.Context, wf *task.Workflow) ([]*task.Result, error) {
	o.publish("workflow.started", map[string]any{"workflow": wf.Name, "steps": len(wf.Steps)})
	results, err := o.ExecuteWorkflow(ctx, wf.Tasks(), wf.StopOnFailure)
	o.publish("workflow.finished", map[string]any{"workflow": wf.Name, "executed": len(results)})
	return results, err
}
