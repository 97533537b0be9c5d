package tools

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// BuildChallenge wraps a statement in critical-reassessment framing. No
// model call happens here; the wrapped prompt goes back to the caller.
func BuildChallenge(prompt string) string {
	var sb strings.Builder
	sb.WriteString("CRITICAL REASSESSMENT – Do not automatically agree:\n\n")
	sb.WriteString(fmt.Sprintf("%q\n\n", prompt))
	sb.WriteString("Carefully evaluate the statement above. Is it accurate, complete, and well-reasoned? ")
	sb.WriteString("Investigate if needed before replying, and stand by the truth even when it means disagreeing. ")
	sb.WriteString("If the statement is correct, say so and explain why; if it is flawed, explain what is wrong and what holds instead.")
	return sb.String()
}

// RenderListModels writes the provider/model inventory grouped by provider.
func RenderListModels(reg *provider.Registry) string {
	var sb strings.Builder
	sb.WriteString("# Available Models\n\n")

	providers := reg.Providers()
	if len(providers) == 0 {
		sb.WriteString("No providers configured. Set at least one provider API key.\n")
		return sb.String()
	}

	for _, p := range providers {
		fmt.Fprintf(&sb, "## %s (`%s`)\n\n", p.FriendlyName(), p.Name())
		models := p.ListModels()
		sort.Strings(models)
		for _, m := range models {
			caps, ok := p.Capabilities(m)
			if !ok {
				fmt.Fprintf(&sb, "- `%s`\n", m)
				continue
			}
			var traits []string
			if caps.ContextWindow > 0 {
				traits = append(traits, fmt.Sprintf("%s context", humanTokens(caps.ContextWindow)))
			}
			if caps.SupportsExtendedThinking {
				traits = append(traits, "extended thinking")
			}
			if caps.SupportsImages {
				traits = append(traits, "vision")
			}
			if len(traits) > 0 {
				fmt.Fprintf(&sb, "- `%s` — %s\n", m, strings.Join(traits, ", "))
			} else {
				fmt.Fprintf(&sb, "- `%s`\n", m)
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Use `model: auto` to let the server pick per tool category.\n")
	return sb.String()
}

// RenderVersion reports server build information and the configured stack.
func RenderVersion(version string, reg *provider.Registry, toolCount int) string {
	var sb strings.Builder
	sb.WriteString("# Server Information\n\n")
	fmt.Fprintf(&sb, "Version: %s\n", version)
	fmt.Fprintf(&sb, "Runtime: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Tools available: %d\n\n", toolCount)

	providers := reg.Providers()
	fmt.Fprintf(&sb, "Configured providers: %d\n", len(providers))
	for _, p := range providers {
		fmt.Fprintf(&sb, "- %s (%d models)\n", p.FriendlyName(), len(p.ListModels()))
	}
	return sb.String()
}

func humanTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%dK", n/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
