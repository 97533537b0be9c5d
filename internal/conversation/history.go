package conversation

import (
	"fmt"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
)

// ModelContext carries everything history reconstruction needs about the
// target model: its name, window allocation, and the shared estimator.
type ModelContext struct {
	Model      string
	Allocation tokens.Allocation
	Estimator  *tokens.Estimator
	Counter    tokens.Counter // provider tokeniser hook, may be nil
	Files      *fileio.Validator
}

// BuildHistory reconstructs prior turns as a text block under the history
// budget and returns it with the tokens it consumed.
//
// Collection walks turns newest to oldest while budget remains; presentation
// emits the collected subset oldest to newest so the model reads
// chronologically. When the budget cuts off older turns, a short header
// notes the omission. File content referenced by included turns is embedded
// once per unique path, at its newest reference, inside the file budget.
func BuildHistory(ctx *ThreadContext, mc ModelContext) (string, int) {
	if ctx == nil || len(ctx.Turns) == 0 {
		return "", 0
	}

	estimate := func(s string) int {
		return mc.Estimator.EstimateText(s, mc.Model, mc.Counter)
	}

	// Newest-first collection under the history budget. The newest turn is
	// always included, mirroring the always-include-latest rule of the
	// budget walk.
	start := 0
	if budget := mc.Allocation.HistoryTokens; budget > 0 {
		total := 0
		start = len(ctx.Turns)
		for i := len(ctx.Turns) - 1; i >= 0; i-- {
			cost := estimate(ctx.Turns[i].Content)
			if total+cost > budget && i != len(ctx.Turns)-1 {
				break
			}
			total += cost
			start = i
		}
	}
	included := ctx.Turns[start:]

	var sb strings.Builder
	sb.WriteString("=== CONVERSATION HISTORY (CONTINUATION) ===\n")
	fmt.Fprintf(&sb, "Thread: %s\nTool: %s\n", ctx.ID, ctx.ToolName)
	if start > 0 {
		fmt.Fprintf(&sb, "[Note: %d earlier turn(s) omitted to fit the context budget]\n", start)
	}
	sb.WriteString("\n")

	if files := embedFiles(included, mc); files != "" {
		sb.WriteString("=== FILES REFERENCED IN THIS CONVERSATION ===\n")
		sb.WriteString("Each file appears once, at its most recent state.\n\n")
		sb.WriteString(files)
		sb.WriteString("\n=== END FILES ===\n\n")
	}

	for i, t := range included {
		label := t.Role
		var meta []string
		if t.ToolName != "" {
			meta = append(meta, "using "+t.ToolName)
		}
		if t.ModelName != "" {
			meta = append(meta, "via "+t.ModelName)
		}
		if len(meta) > 0 {
			label += " (" + strings.Join(meta, ", ") + ")"
		}
		fmt.Fprintf(&sb, "--- Turn %d (%s) ---\n%s\n", start+i+1, label, t.Content)
		if files := dedupedFilesFor(included, i); len(files) > 0 {
			fmt.Fprintf(&sb, "[Files referenced: %s]\n", strings.Join(files, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("=== END CONVERSATION HISTORY ===\n")

	text := sb.String()
	return text, estimate(text)
}

// dedupedFilesFor returns turn i's file list with every path that reappears
// in a NEWER turn removed; the newest reference owns the file.
func dedupedFilesFor(included []Turn, i int) []string {
	var out []string
	for _, f := range included[i].Files {
		ownedByNewer := false
		for j := i + 1; j < len(included); j++ {
			for _, later := range included[j].Files {
				if later == f {
					ownedByNewer = true
					break
				}
			}
			if ownedByNewer {
				break
			}
		}
		if !ownedByNewer {
			out = append(out, f)
		}
	}
	return out
}

// embedFiles renders the unique file set of the included turns, newest
// reference first, stopping when the file budget is exhausted. Skipped
// files are listed by name so the model knows what was left out.
func embedFiles(included []Turn, mc ModelContext) string {
	if mc.Files == nil {
		return ""
	}

	// Unique paths, newest turn first, preserving in-turn order.
	seen := make(map[string]bool)
	var paths []string
	for i := len(included) - 1; i >= 0; i-- {
		for _, f := range included[i].Files {
			if !seen[f] {
				seen[f] = true
				paths = append(paths, f)
			}
		}
	}
	if len(paths) == 0 {
		return ""
	}

	var sb strings.Builder
	budget := mc.Allocation.FileTokens
	used := 0
	var skipped []string
	for _, p := range paths {
		block, _ := mc.Files.ReadFile(p, fileio.ReadOptions{})
		cost := mc.Estimator.EstimateText(block, mc.Model, mc.Counter)
		if budget > 0 && used+cost > budget {
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
