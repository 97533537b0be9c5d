package workflow

import "fmt"

// toolFocus names what each tool's investigation is about, for guidance text.
var toolFocus = map[string]string{
	"thinkdeep":  "the problem space and the assumptions behind it",
	"planner":    "the goal, constraints and major milestones",
	"debug":      "the reported symptom and the code paths that could produce it",
	"codereview": "the changed code and its blast radius",
	"precommit":  "the staged changes and the repositories they touch",
	"analyze":    "the architecture and data flow of the selected code",
	"refactor":   "code smells, duplication and decomposition opportunities",
	"secaudit":   "attack surface, input handling and trust boundaries",
	"testgen":    "the behaviour under test and its edge cases",
	"docgen":     "the public surface that needs documentation",
	"tracer":     "the call chains and dependencies of the target",
	"consensus":  "the proposal each model is asked to judge",
}

// RequiredActions derives the client-side actions demanded before the next
// step. Purely a function of (tool, step_number, confidence, total_steps):
// step 1 maps the territory, intermediate steps deepen, late high-confidence
// steps verify and close.
func RequiredActions(tool string, stepNumber int, confidence string, totalSteps int) []string {
	focus := toolFocus[tool]
	if focus == "" {
		focus = "the task at hand"
	}

	if stepNumber == 1 {
		return []string{
			fmt.Sprintf("Read the files and code relevant to %s", focus),
			"Map the components involved and note how they interact",
			"Record concrete findings, not intentions, before calling again",
		}
	}

	closing := stepNumber >= totalSteps-1 ||
		confidence == "high" || confidence == "very_high" || confidence == "almost_certain"
	if closing {
		return []string{
			"Verify the current hypothesis against the actual code, not memory",
			"Check for counter-evidence that would invalidate the conclusion",
			"Confirm the relevant_files list is complete before the final step",
		}
	}

	return []string{
		fmt.Sprintf("Deepen the investigation of %s", focus),
		"Challenge the current hypothesis: look for alternative explanations",
		"Track every file examined in files_checked, keep relevant_files tight",
	}
}
