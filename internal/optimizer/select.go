// Package optimizer implements the two-stage mode facade: select_mode picks
// the right tool and complexity from a task description without an LLM, and
// execute_mode dispatches a schema-validated request to it. Legacy per-tool
// stubs forward through the same path.
package optimizer

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
)

// lexicon holds one mode's scoring vocabulary. Primary hits weigh 3,
// secondary hits weigh 1.
type lexicon struct {
	primary   []string
	secondary []string
}

const (
	primaryWeight   = 3
	secondaryWeight = 1
)

var lexicons = map[string]lexicon{
	"analyze": {
		primary:   []string{"analyze", "analysis", "architecture", "structure", "data flow"},
		secondary: []string{"understand", "overview", "assess", "scalability"},
	},
	"chat": {
		primary:   []string{"chat", "question", "explain", "discuss"},
		secondary: []string{"help", "opinion", "brainstorm"},
	},
	"codereview": {
		primary:   []string{"review", "code review", "pull request"},
		secondary: []string{"feedback", "quality", "style", "maintainability"},
	},
	"consensus": {
		primary:   []string{"consensus", "multiple models", "second opinion", "vote"},
		secondary: []string{"compare", "perspectives", "agree"},
	},
	"debug": {
		primary:   []string{"debug", "bug", "error", "crash", "exception", "stack trace"},
		secondary: []string{"fix", "broken", "fails", "reproduce", "root cause"},
	},
	"docgen": {
		primary:   []string{"document", "documentation", "docstring"},
		secondary: []string{"comment", "api docs"},
	},
	"planner": {
		primary:   []string{"plan", "planning", "roadmap", "milestone"},
		secondary: []string{"phases", "organize", "break down"},
	},
	"precommit": {
		primary:   []string{"precommit", "pre-commit", "before committing", "staged"},
		secondary: []string{"diff", "changeset", "commit"},
	},
	"refactor": {
		primary:   []string{"refactor", "code smell", "decompose", "cleanup"},
		secondary: []string{"simplify", "reorganize", "modernize", "split"},
	},
	"secaudit": {
		primary:   []string{"security", "vulnerability", "audit", "owasp"},
		secondary: []string{"exploit", "injection", "authentication", "threat"},
	},
	"testgen": {
		primary:   []string{"test", "tests", "unit test", "coverage"},
		secondary: []string{"edge case", "regression", "assert"},
	},
	"thinkdeep": {
		primary:   []string{"think deeply", "reason", "hypothesis", "deeper analysis"},
		secondary: []string{"explore", "validate thinking", "extend"},
	},
	"tracer": {
		primary:   []string{"trace", "call chain", "execution flow"},
		secondary: []string{"dependency", "callers", "call path"},
	},
}

// workflowCues in a task description push complexity to workflow;
// simpleCues push it to simple. Explicit caller hints beat both.
var (
	workflowCues = []string{"systematic", "comprehensive", "step by step", "step-by-step", "thorough", "multi-step", "investigate"}
	simpleCues   = []string{"quick", "simple", "brief", "short"}
)

// workflowDefault names the modes whose default complexity is workflow.
var workflowDefault = map[string]bool{
	"debug": true, "codereview": true, "secaudit": true, "analyze": true,
	"precommit": true, "refactor": true, "testgen": true, "docgen": true,
	"tracer": true, "planner": true, "thinkdeep": true,
}

// Selection is select_mode's answer: which tool, at what complexity, with
// the schema the follow-up execute_mode call must satisfy.
type Selection struct {
	SelectedMode   string          `json:"selected_mode"`
	Complexity     string          `json:"complexity"` // "simple" or "workflow"
	RequiredSchema json.RawMessage `json:"required_schema"`
	WorkingExample map[string]any  `json:"working_example"`
	NextStep       string          `json:"next_step"`
}

// SelectMode scores the task description against every mode lexicon and
// returns the winner with its request contract. Pure: identical inputs give
// identical output. Ties break lexicographically; a zero score everywhere
// selects chat.
func (o *Optimizer) SelectMode(taskDescription, contextSize, confidenceLevel string) Selection {
	mode := scoreModes(taskDescription)
	complexity := deriveComplexity(mode, taskDescription, contextSize, confidenceLevel)

	sel := Selection{
		SelectedMode: mode,
		Complexity:   complexity,
		NextStep: "Call execute_mode with mode=" + mode + ", complexity=" + complexity +
			" and a request matching required_schema.",
	}
	if desc, ok := o.catalogue.Get(toolForMode(mode)); ok {
		sel.RequiredSchema = o.catalogue.Schema(desc)
		sel.WorkingExample = exampleRequest(desc, taskDescription)
	}
	return sel
}

func scoreModes(task string) string {
	text := strings.ToLower(task)

	names := make([]string, 0, len(lexicons))
	for name := range lexicons {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestScore := "chat", 0
	for _, name := range names {
		lex := lexicons[name]
		score := 0
		for _, term := range lex.primary {
			score += strings.Count(text, term) * primaryWeight
		}
		for _, term := range lex.secondary {
			score += strings.Count(text, term) * secondaryWeight
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}

func deriveComplexity(mode, task, contextSize, confidenceLevel string) string {
	switch strings.ToLower(contextSize) {
	case "large", "huge":
		return "workflow"
	case "small":
		return "simple"
	}
	switch strings.ToLower(confidenceLevel) {
	case "exploring", "low":
		return "workflow"
	}

	text := strings.ToLower(task)
	for _, cue := range workflowCues {
		if strings.Contains(text, cue) {
			return "workflow"
		}
	}
	for _, cue := range simpleCues {
		if strings.Contains(text, cue) {
			return "simple"
		}
	}

	if workflowDefault[mode] {
		return "workflow"
	}
	return "simple"
}

// exampleRequest builds the smallest request the selected tool accepts,
// seeded with the caller's own task text.
func exampleRequest(desc *catalogue.Descriptor, task string) map[string]any {
	if task == "" {
		task = "Describe the task here"
	}
	if desc.Shape == catalogue.ShapeWorkflow {
		return map[string]any{
			"step":               task,
			"step_number":        1,
			"total_steps":        3,
			"next_step_required": true,
			"findings":           "Starting the investigation; no findings recorded yet.",
		}
	}
	return map[string]any{"prompt": task}
}
