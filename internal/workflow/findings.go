// Package workflow implements the pause/resume state machine behind the
// investigative tools. Each external call delivers exactly one step; the
// engine never advances on its own. On the declared final step it may
// consult an expert model to validate the consolidated findings.
package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is one problem found during an investigation.
type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Hypothesis is a step-tagged theory with its confidence at the time.
type Hypothesis struct {
	Step       int    `json:"step"`
	Text       string `json:"text"`
	Confidence string `json:"confidence"`
}

// StepRecord is an immutable snapshot of the step-scoped fields of one
// request. work_history is the replay source after a backtrack.
type StepRecord struct {
	StepNumber      int      `json:"step_number"`
	Step            string   `json:"step"`
	Findings        string   `json:"findings"`
	FilesChecked    []string `json:"files_checked,omitempty"`
	RelevantFiles   []string `json:"relevant_files,omitempty"`
	RelevantContext []string `json:"relevant_context,omitempty"`
	IssuesFound     []Issue  `json:"issues_found,omitempty"`
	Images          []string `json:"images,omitempty"`
	Hypothesis      string   `json:"hypothesis,omitempty"`
	Confidence      string   `json:"confidence,omitempty"`
}

// ConsolidatedFindings is the accumulated view over the surviving work
// history. It is always rebuilt by replay, never mutated in place, so a
// backtrack is exactly equivalent to never having taken the dropped steps.
type ConsolidatedFindings struct {
	Findings        []string     `json:"findings"`
	FilesChecked    []string     `json:"files_checked"`
	RelevantFiles   []string     `json:"relevant_files"`
	RelevantContext []string     `json:"relevant_context"`
	Hypotheses      []Hypothesis `json:"hypotheses,omitempty"`
	IssuesFound     []Issue      `json:"issues_found,omitempty"`
	Images          []string     `json:"images,omitempty"`
	Confidence      string       `json:"confidence"`
}

// Replay rebuilds ConsolidatedFindings from a work history. Set fields
// (files, context) are deduplicated preserving first appearance; findings
// are step-tagged strings in history order.
func Replay(history []StepRecord) ConsolidatedFindings {
	cf := ConsolidatedFindings{Confidence: "exploring"}

	addUnique := func(dst *[]string, values []string) {
		for _, v := range values {
			found := false
			for _, existing := range *dst {
				if existing == v {
					found = true
					break
				}
			}
			if !found {
				*dst = append(*dst, v)
			}
		}
	}

	for _, rec := range history {
		if rec.Findings != "" {
			cf.Findings = append(cf.Findings, fmt.Sprintf("Step %d: %s", rec.StepNumber, rec.Findings))
		}
		addUnique(&cf.FilesChecked, rec.FilesChecked)
		addUnique(&cf.RelevantFiles, rec.RelevantFiles)
		addUnique(&cf.RelevantContext, rec.RelevantContext)
		addUnique(&cf.Images, rec.Images)
		cf.IssuesFound = append(cf.IssuesFound, rec.IssuesFound...)
		if rec.Hypothesis != "" {
			cf.Hypotheses = append(cf.Hypotheses, Hypothesis{
				Step: rec.StepNumber, Text: rec.Hypothesis, Confidence: rec.Confidence,
			})
		}
		if rec.Confidence != "" {
			cf.Confidence = rec.Confidence
		}
	}
	return cf
}

// Truncate drops history entries with StepNumber >= from, strictly by step
// number: interleaved records sharing a number fall together.
func Truncate(history []StepRecord, from int) []StepRecord {
	out := make([]StepRecord, 0, len(history))
	for _, rec := range history {
		if rec.StepNumber < from {
			out = append(out, rec)
		}
	}
	return out
}

// Summary renders the consolidated findings as the work summary included in
// completion envelopes and expert context.
func (cf *ConsolidatedFindings) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== INVESTIGATION SUMMARY ===\n")
	fmt.Fprintf(&sb, "Steps completed: %d\n", len(cf.Findings))
	fmt.Fprintf(&sb, "Files checked: %d, relevant: %d\n", len(cf.FilesChecked), len(cf.RelevantFiles))
	fmt.Fprintf(&sb, "Final confidence: %s\n\n", cf.Confidence)

	for _, f := range cf.Findings {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	if len(cf.RelevantContext) > 0 {
		fmt.Fprintf(&sb, "\nRelevant context: %s\n", strings.Join(cf.RelevantContext, ", "))
	}
	if len(cf.IssuesFound) > 0 {
		sb.WriteString("\nIssues found:\n")
		issues := append([]Issue(nil), cf.IssuesFound...)
		sort.SliceStable(issues, func(i, j int) bool {
			return severityRank(issues[i].Severity) < severityRank(issues[j].Severity)
		})
		for _, iss := range issues {
			fmt.Fprintf(&sb, "- [%s] %s\n", iss.Severity, iss.Description)
		}
	}
	if len(cf.Hypotheses) > 0 {
		sb.WriteString("\nHypotheses:\n")
		for _, h := range cf.Hypotheses {
			fmt.Fprintf(&sb, "- step %d (%s): %s\n", h.Step, h.Confidence, h.Text)
		}
	}
	return sb.String()
}

func severityRank(s string) int {
	switch strings.ToLower(s) {
	case "critical":
		return 0
	case "high":
		return 1
	case "medium":
		return 2
	case "low":
		return 3
	default:
		return 4
	}
}
