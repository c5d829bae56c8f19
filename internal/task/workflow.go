package task

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorkflowStep is one entry of a workflow file. Type is required; Agent pins
// the step to a named adapter instead of capability routing.
type WorkflowStep struct {
	Type     string            `yaml:"type"`
	Agent    string            `yaml:"agent,omitempty"`
	Params   map[string]any    `yaml:"params,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Workflow is the on-disk form of an ordered task sequence.
type Workflow struct {
	Name          string         `yaml:"name"`
	StopOnFailure bool           `yaml:"stop_on_failure"`
	Steps         []WorkflowStep `yaml:"steps"`
}

// LoadWorkflow reads and validates a workflow YAML file.
func LoadWorkflow(path string) (*Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	var wf Workflow
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", wf.Name)
	}
	for i, step := range wf.Steps {
		if step.Type == "" {
			return nil, fmt.Errorf("workflow %q step %d is missing a type", wf.Name, i+1)
		}
	}
	return &wf, nil
}

// Tasks materializes the workflow steps into runnable tasks, preserving step
// order. Each call yields fresh task ids.
func (w *Workflow) Tasks() []*Task {
	tasks := make([]*Task, 0, len(w.Steps))
	for _, step := range w.Steps {
		t := New(step.Type, cloneParams(step.Params))
		for k, v := range step.Metadata {
			t.Metadata[k] = v
		}
		if step.Agent != "" {
			t.Metadata["agent"] = step.Agent
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
