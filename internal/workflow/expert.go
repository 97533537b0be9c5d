package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
)

// expertInstructions is appended to the tool's system prompt for the
// validation pass. The JSON requirement is what parseExpert depends on.
const expertInstructions = `

You are now acting as the expert validator for a completed investigation.
Assess the findings below: confirm what holds, challenge what does not, and
point out anything the investigation missed. If you cannot proceed without
seeing additional files, respond with {"status": "files_required_to_continue",
"files_needed": [...]}. Otherwise respond with a single JSON object:
{"status": "analysis_complete", "summary": "...", "agreements": [...],
"disagreements": [...], "additional_concerns": [...]}.`

// callExpert runs the terminal provider pass over the consolidated findings.
// Returns the parsed analysis and the raw response text. Errors mean the
// provider call itself failed; a malformed response is not an error.
func (e *Engine) callExpert(ctx context.Context, desc *catalogue.Descriptor, req *StepRequest, cf *ConsolidatedFindings, threadID string, rm *provider.Resolved) (map[string]any, string, error) {
	alloc := tokens.NewAllocation(rm.Capabilities.ContextWindow)
	mc := conversation.ModelContext{
		Model:      rm.Name,
		Allocation: alloc,
		Estimator:  e.estimator,
		Counter:    rm.Provider,
		Files:      e.files,
	}

	var sb strings.Builder
	if thread := e.store.Get(threadID); thread != nil {
		if history, _ := conversation.BuildHistory(thread, mc); history != "" {
			sb.WriteString(history)
			sb.WriteString("\n")
		}
	}
	sb.WriteString(cf.Summary())

	if files := e.embedRelevantFiles(req, cf, mc); files != "" {
		sb.WriteString("\n=== ESSENTIAL FILES ===\n")
		sb.WriteString(files)
		sb.WriteString("=== END ESSENTIAL FILES ===\n")
	}

	fmt.Fprintf(&sb, "\nFinal step statement: %s\n", req.Step)

	temp := req.Temperature
	if temp == nil {
		t := desc.DefaultTemp
		temp = &t
	}
	genReq := provider.GenerateRequest{
		Model:        rm.Name,
		SystemPrompt: e.prompts.Get(desc.SystemPromptID) + expertInstructions,
		Prompt:       sb.String(),
		Temperature:  temp,
		MaxTokens:    alloc.ResponseTokens,
		ThinkingMode: req.ThinkingMode,
		Images:       cf.Images,
	}

	log.Printf("[Workflow] %s: calling expert analysis via %s", desc.Name, rm.Name)
	resp, err := rm.Provider.GenerateContent(ctx, genReq)
	if err != nil {
		return nil, "", err
	}
	return parseExpert(resp.Content), resp.Content, nil
}

// embedRelevantFiles renders the deduplicated relevant-file union within the
// file budget, the current step's files first so truncation drops the
// oldest references.
func (e *Engine) embedRelevantFiles(req *StepRequest, cf *ConsolidatedFindings, mc conversation.ModelContext) string {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range req.RelevantFiles {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, p := range cf.RelevantFiles {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return ""
	}

	var sb strings.Builder
	used := 0
	var skipped []string
	for _, p := range paths {
		block, _ := e.files.ReadFile(p, fileio.ReadOptions{LineNumbers: true})
		cost := mc.Estimator.EstimateText(block, mc.Model, mc.Counter)
		if mc.Allocation.FileTokens > 0 && used+cost > mc.Allocation.FileTokens {
			skipped = append(skipped, p)
			continue
		}
		used += cost
		sb.WriteString(block)
		sb.WriteString("\n")
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&sb, "[Note: %d file(s) omitted for budget: %s]\n", len(skipped), strings.Join(skipped, ", "))
	}
	return sb.String()
}

// parseExpert extracts the JSON object from a model response. Responses that
// are not valid JSON are preserved raw under a parse_error marker rather
// than discarded.
func parseExpert(raw string) map[string]any {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "{"); i >= 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(text[i:j+1]), &parsed); err == nil {
				if _, ok := parsed["status"]; !ok {
					parsed["status"] = "analysis_complete"
				}
				return parsed
			}
		}
	}
	return map[string]any{
		"status":       "analysis_complete",
		"raw_analysis": raw,
		"parse_error":  "expert response was not valid JSON; raw text preserved",
	}
}
