package catalogue

import (
	"encoding/json"
)

// Field describes one schema property.
type Field struct {
	Name        string
	Type        string // "string", "integer", "number", "boolean", "array"
	Items       string // element type when Type == "array"
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

func f64(v float64) *float64 { return &v }

// sharedFields is the common field set every tool's schema starts from.
var sharedFields = []Field{
	{Name: "model", Type: "string", Description: "Model to use, or 'auto' to let the server pick by tool category"},
	{Name: "temperature", Type: "number", Description: "Response creativity (0.0-1.0)", Minimum: f64(0), Maximum: f64(1)},
	{Name: "thinking_mode", Type: "string", Description: "Reasoning depth for models with extended thinking",
		Enum: []string{"minimal", "low", "medium", "high", "max"}},
	{Name: "use_websearch", Type: "boolean", Description: "Allow the model to request web lookups"},
	{Name: "continuation_id", Type: "string", Description: "Thread continuation id for multi-turn conversations"},
	{Name: "files", Type: "array", Items: "string", Description: "Absolute paths of files relevant to the request"},
	{Name: "images", Type: "array", Items: "string", Description: "Absolute paths of images for visual context"},
}

// workflowFields are added for workflow-shaped tools.
var workflowFields = []Field{
	{Name: "step", Type: "string", Description: "Description of the work performed in this step"},
	{Name: "step_number", Type: "integer", Description: "Current step number, starting at 1", Minimum: f64(1)},
	{Name: "total_steps", Type: "integer", Description: "Current estimate of the steps needed", Minimum: f64(1)},
	{Name: "next_step_required", Type: "boolean", Description: "True while further investigation steps are needed"},
	{Name: "findings", Type: "string", Description: "Observations collected during this step"},
	{Name: "files_checked", Type: "array", Items: "string", Description: "All files examined so far (absolute paths)"},
	{Name: "relevant_files", Type: "array", Items: "string", Description: "Files directly relevant to the task (absolute paths)"},
	{Name: "relevant_context", Type: "array", Items: "string", Description: "Methods or functions central to the task"},
	{Name: "issues_found", Type: "array", Items: "object", Description: "Issues found so far, each with severity and description"},
	{Name: "confidence", Type: "string", Description: "Current confidence in the assessment",
		Enum: []string{"exploring", "low", "medium", "high", "very_high", "almost_certain", "certain"}},
	{Name: "backtrack_from_step", Type: "integer", Description: "Step number to discard from when revising earlier work", Minimum: f64(1)},
}

// BuildSchema assembles a tool's JSON Schema from the shared field set, the
// workflow fields when applicable, and the descriptor's extras.
func BuildSchema(d *Descriptor) json.RawMessage {
	fields := make([]Field, 0, len(sharedFields)+len(workflowFields)+len(d.ExtraFields))
	fields = append(fields, sharedFields...)
	if d.Shape == ShapeWorkflow {
		fields = append(fields, workflowFields...)
	}
	fields = append(fields, d.ExtraFields...)

	properties := make(map[string]any, len(fields))
	for _, fld := range fields {
		prop := map[string]any{
			"type":        fld.Type,
			"description": fld.Description,
		}
		if fld.Type == "array" && fld.Items != "" {
			prop["items"] = map[string]any{"type": fld.Items}
		}
		if len(fld.Enum) > 0 {
			prop["enum"] = fld.Enum
		}
		if fld.Minimum != nil {
			prop["minimum"] = *fld.Minimum
		}
		if fld.Maximum != nil {
			prop["maximum"] = *fld.Maximum
		}
		properties[fld.Name] = prop
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(d.RequiredFields) > 0 {
		schema["required"] = d.RequiredFields
	}

	data, _ := json.Marshal(schema)
	return data
}
