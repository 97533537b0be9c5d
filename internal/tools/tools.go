// Package tools defines the server's tool set: every descriptor the
// catalogue advertises, plus the renderers for the self-describing tools
// (listmodels, version) and the challenge wrapper.
package tools

import (
	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// Temperature presets. Analytical work wants determinism; open-ended
// reasoning gets head-room.
const (
	tempAnalytical = 0.2
	tempBalanced   = 0.5
	tempCreative   = 0.7
)

var workflowRequired = []string{"step", "step_number", "total_steps", "next_step_required", "findings"}

// All returns every tool descriptor, simple and workflow.
func All() []*catalogue.Descriptor {
	return []*catalogue.Descriptor{
		{
			Name:           "chat",
			Description:    "General conversation, brainstorming and quick questions with full file and image context",
			Category:       provider.CategoryFastResponse,
			RequiresModel:  true,
			Shape:          catalogue.ShapeSimple,
			DefaultTemp:    tempBalanced,
			SystemPromptID: "chat",
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "prompt", Type: "string", Description: "The question or topic to discuss"},
			},
			RequiredFields: []string{"prompt"},
		},
		{
			Name:           "challenge",
			Description:    "Wraps a statement in critical-reassessment framing to prevent reflexive agreement",
			Category:       provider.CategoryFastResponse,
			RequiresModel:  false,
			Shape:          catalogue.ShapeSimple,
			SystemPromptID: "challenge",
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "prompt", Type: "string", Description: "The statement to reassess critically"},
			},
			RequiredFields: []string{"prompt"},
		},
		{
			Name:          "listmodels",
			Description:   "List configured providers and the models they serve, with capability summaries",
			Category:      provider.CategoryFastResponse,
			RequiresModel: false,
			Shape:         catalogue.ShapeSimple,
			Version:       1,
		},
		{
			Name:          "version",
			Description:   "Report server version, build information and configured providers",
			Category:      provider.CategoryFastResponse,
			RequiresModel: false,
			Shape:         catalogue.ShapeSimple,
			Version:       1,
		},
		{
			Name:           "thinkdeep",
			Description:    "Multi-step deep reasoning about a complex problem with expert validation",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempCreative,
			SystemPromptID: "thinkdeep",
			Expert:         catalogue.ExpertPolicy{Enabled: true, HonourCertain: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "hypothesis", Type: "string", Description: "Current working theory"},
				{Name: "problem_context", Type: "string", Description: "Background the investigation starts from"},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "planner",
			Description:    "Interactive sequential planning: break a task into steps, revise and branch as understanding grows",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  false,
			Shape:          catalogue.ShapeWorkflow,
			SystemPromptID: "planner",
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "is_step_revision", Type: "boolean", Description: "True when this step revises an earlier one"},
				{Name: "revises_step_number", Type: "integer", Description: "The step being revised", Minimum: f64(1)},
				{Name: "is_branch_point", Type: "boolean", Description: "True when this step forks an alternative plan"},
				{Name: "branch_id", Type: "string", Description: "Identifier of the branch being explored"},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "debug",
			Description:    "Systematic root-cause investigation of bugs and unexpected behaviour",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "debug",
			Expert:         catalogue.ExpertPolicy{Enabled: true, HonourCertain: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "hypothesis", Type: "string", Description: "Current theory of the root cause"},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "codereview",
			Description:    "Step-by-step review of code quality, correctness and maintainability",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "codereview",
			Expert:         catalogue.ExpertPolicy{Enabled: true, ForceOn: true, HonourCertain: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "review_type", Type: "string", Description: "Focus of the review",
					Enum: []string{"full", "security", "performance", "quick"}},
			},
			RequiredFields: workflowRequired,
			Step1Required:  []string{"relevant_files"},
		},
		{
			Name:           "precommit",
			Description:    "Validate staged and unstaged changes across repositories before committing",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "precommit",
			Expert:         catalogue.ExpertPolicy{Enabled: true, HonourCertain: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "path", Type: "string", Description: "Repository root to inspect"},
				{Name: "compare_to", Type: "string", Description: "Git ref to diff against instead of the working tree"},
				{Name: "include_staged", Type: "boolean", Description: "Inspect staged changes"},
				{Name: "include_unstaged", Type: "boolean", Description: "Inspect unstaged changes"},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "analyze",
			Description:    "Holistic assessment of architecture, scalability and strategic fit",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "analyze",
			Expert:         catalogue.ExpertPolicy{Enabled: true, ForceOn: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "analysis_type", Type: "string", Description: "Aspect to analyse",
					Enum: []string{"architecture", "performance", "security", "quality", "general"}},
			},
			RequiredFields: workflowRequired,
			Step1Required:  []string{"relevant_files"},
		},
		{
			Name:           "refactor",
			Description:    "Identify code smells, decomposition opportunities and modernisation targets",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "refactor",
			Expert:         catalogue.ExpertPolicy{Enabled: true, HonourCertain: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "refactor_type", Type: "string", Description: "Kind of refactoring to look for",
					Enum: []string{"codesmells", "decompose", "modernize", "organization"}},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "secaudit",
			Description:    "Security audit: attack surface, input handling, auth and dependency risk",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "secaudit",
			Expert:         catalogue.ExpertPolicy{Enabled: true, HonourCertain: true},
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "audit_focus", Type: "string", Description: "Security aspect to concentrate on",
					Enum: []string{"owasp", "compliance", "infrastructure", "dependencies", "comprehensive"}},
				{Name: "threat_level", Type: "string", Description: "Assessed exposure of the system",
					Enum: []string{"low", "medium", "high", "critical"}},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "testgen",
			Description:    "Generate tests by first mapping the behaviour under test and its edge cases",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "testgen",
			Expert:         catalogue.ExpertPolicy{Enabled: true, HonourCertain: true},
			Version:        1,
			RequiredFields: workflowRequired,
		},
		{
			Name:           "docgen",
			Description:    "Document code file by file: complexity notes, call flow and parameter docs",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "docgen",
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "num_files_documented", Type: "integer", Description: "Files fully documented so far", Minimum: f64(0)},
				{Name: "total_files_to_document", Type: "integer", Description: "Total files needing documentation", Minimum: f64(0)},
			},
			RequiredFields: workflowRequired,
		},
		{
			Name:           "tracer",
			Description:    "Trace execution flow or structural dependencies of a method, class or module",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "tracer",
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "trace_mode", Type: "string", Description: "precision traces call flow, dependencies maps structure",
					Enum: []string{"precision", "dependencies", "ask"}},
				{Name: "target_description", Type: "string", Description: "What to trace and why"},
			},
			RequiredFields: append(append([]string{}, workflowRequired...), "trace_mode", "target_description"),
		},
		{
			Name:           "consensus",
			Description:    "Consult multiple models on a proposal, one per step, then synthesise their answers",
			Category:       provider.CategoryExtendedReasoning,
			RequiresModel:  true,
			Shape:          catalogue.ShapeWorkflow,
			DefaultTemp:    tempAnalytical,
			SystemPromptID: "consensus",
			Version:        1,
			ExtraFields: []catalogue.Field{
				{Name: "models", Type: "array", Items: "object",
					Description: "Models to consult, each with a name and an optional for/against stance"},
				{Name: "current_model_index", Type: "integer", Description: "Index of the model consulted this step", Minimum: f64(0)},
			},
			RequiredFields: workflowRequired,
			Step1Required:  []string{"models"},
		},
	}
}

// Register installs every descriptor into the registry.
func Register(reg *catalogue.Registry) {
	for _, d := range All() {
		reg.Register(d)
	}
}

func f64(v float64) *float64 { return &v }
