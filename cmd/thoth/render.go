package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"thoth/internal/task"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func renderError(err error) string {
	return red("error: " + err.Error())
}

func renderResult(step int, result *task.Result) string {
	var b strings.Builder

	if result.Succeeded() {
		fmt.Fprintf(&b, "%s %s %s", green("✔"), bold(fmt.Sprintf("step %d", step)), gray(result.TaskID))
		if len(result.Data) > 0 {
			if data, err := json.MarshalIndent(result.Data, "  ", "  "); err == nil {
				fmt.Fprintf(&b, "\n  %s", string(data))
			}
		}
	} else {
		fmt.Fprintf(&b, "%s %s %s\n  %s", red("✘"), bold(fmt.Sprintf("step %d", step)), gray(result.TaskID), red(result.Error))
	}
	fmt.Fprintf(&b, "\n  %s", gray(fmt.Sprintf("took %s", result.ExecutionTime)))
	return b.String()
}

func renderSummary(name string, results []*task.Result) string {
	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	line := fmt.Sprintf("workflow %q: %d/%d steps succeeded", name, succeeded, len(results))
	if succeeded == len(results) {
		return green(line)
	}
	return red(line)
}
