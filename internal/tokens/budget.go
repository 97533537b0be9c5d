package tokens

import (
	"fmt"
)

// Allocation slices a model's context window. 75% of the window is content
// (shared by history, embedded files and the new prompt); the rest is
// reserved for the response. Within content, files and history each get at
// most 40%; whatever they leave unused flows to the prompt.
type Allocation struct {
	ContextWindow  int
	ContentTokens  int
	ResponseTokens int
	FileTokens     int // upper bound for embedded file content
	HistoryTokens  int // upper bound for reconstructed history
}

const (
	contentFraction = 0.75
	fileFraction    = 0.4
	historyFraction = 0.4
)

// NewAllocation carves up a context window of w tokens.
func NewAllocation(w int) Allocation {
	content := int(float64(w) * contentFraction)
	return Allocation{
		ContextWindow:  w,
		ContentTokens:  content,
		ResponseTokens: w - content,
		FileTokens:     int(float64(content) * fileFraction),
		HistoryTokens:  int(float64(content) * historyFraction),
	}
}

// preflightFraction returns the fraction of the file budget a request's
// files may consume before it is rejected outright. Bigger windows tolerate
// a higher fill because their absolute headroom is larger.
func preflightFraction(window int) float64 {
	switch {
	case window >= 1_000_000:
		return 0.8
	case window >= 500_000:
		return 0.7
	default:
		return 0.6
	}
}

// CodeTooLargeError is the structured pre-flight rejection. Partial
// inclusion is deliberately not offered: the caller must shrink the
// selection.
type CodeTooLargeError struct {
	TotalEstimatedTokens int    `json:"total_estimated_tokens"`
	Limit                int    `json:"limit"`
	ModelName            string `json:"model_name"`
	ContextWindow        int    `json:"model_context_window"`
}

func (e *CodeTooLargeError) Error() string {
	return fmt.Sprintf(
		"code too large: estimated %d tokens exceeds the %d-token file budget for %s (context window %d); reduce the file selection and resubmit",
		e.TotalEstimatedTokens, e.Limit, e.ModelName, e.ContextWindow,
	)
}

// Preflight rejects a request whose file set cannot fit. estimates are the
// per-file token estimates already computed by the caller.
func Preflight(model string, window int, estimates []int) error {
	alloc := NewAllocation(window)
	limit := int(float64(alloc.FileTokens) * preflightFraction(window))

	total := 0
	for _, n := range estimates {
		total += n
	}
	if total > limit {
		return &CodeTooLargeError{
			TotalEstimatedTokens: total,
			Limit:                limit,
			ModelName:            model,
			ContextWindow:        window,
		}
	}
	return nil
}
