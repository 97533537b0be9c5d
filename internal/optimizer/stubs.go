package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
)

// textFields are probed in order for the task text of a loose stub request.
var textFields = []string{"prompt", "request", "task_description", "step"}

// StubExecute is the legacy per-tool entry point. It derives complexity from
// the request text, builds the minimum valid request for the mode, and
// forwards through ExecuteMode. Requests with no usable task text are
// rejected; the stub never invents content on the caller's behalf.
func (o *Optimizer) StubExecute(ctx context.Context, tool string, args map[string]any) (string, error) {
	desc, ok := o.catalogue.Get(toolForMode(tool))
	if !ok {
		return "", fmt.Errorf("unknown tool %q", tool)
	}

	request := args
	if !isComplete(desc, args) {
		task := taskText(args)
		if strings.TrimSpace(task) == "" {
			return "", fmt.Errorf(
				"%s stub: request carries no task text; provide %q or call execute_mode with a full request",
				tool, textFields[0],
			)
		}
		request = MinimalRequest(desc, task)
		// Carry the caller's continuation and model choices through.
		for _, k := range []string{"continuation_id", "model", "files", "relevant_files", "images"} {
			if v, ok := args[k]; ok {
				request[k] = v
			}
		}
	}

	complexity := "simple"
	if desc.Shape == catalogue.ShapeWorkflow || deriveComplexity(desc.Name, taskText(args), "", "") == "workflow" {
		complexity = "workflow"
	}
	return o.ExecuteMode(ctx, desc.Name, complexity, request)
}

// MinimalRequest builds the smallest request a tool accepts from task text.
// select_mode's working example and the stubs share this builder.
func MinimalRequest(desc *catalogue.Descriptor, task string) map[string]any {
	return exampleRequest(desc, task)
}

// isComplete reports whether args already satisfies the tool's required
// field list, in which case the stub forwards it untouched.
func isComplete(desc *catalogue.Descriptor, args map[string]any) bool {
	for _, field := range desc.RequiredFields {
		v, ok := args[field]
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return false
		}
	}
	return len(desc.RequiredFields) > 0
}

func taskText(args map[string]any) string {
	for _, field := range textFields {
		if s, ok := args[field].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
