package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/optimizer"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
	"github.com/orchestra-mcp/orchestra/internal/workflow"
)

type unknownToolError struct {
	name string
}

func (e *unknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.name)
}

// marshalEnvelope serialises an envelope map. Marshal failure cannot happen
// for the shapes the pipeline builds; guard anyway.
func marshalEnvelope(env any) string {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Handler] Envelope marshal failed: %v", err)
		return `{"status":"error","content":"internal: response serialisation failed","content_type":"text"}`
	}
	return string(data)
}

// errorEnvelope maps a pipeline error onto the uniform envelope: free-form
// text under content, machine-readable context under metadata.
func (h *Handler) errorEnvelope(err error, toolName string) string {
	kind := "internal"
	metadata := map[string]any{"tool_name": toolName}

	var (
		unavailable *provider.ModelUnavailableError
		tooLarge    *tokens.CodeTooLargeError
		invalid     *workflow.InvalidStepError
		unknownCont *workflow.UnknownThreadError
		unknownTool *unknownToolError
		validation  *optimizer.ValidationError
		full        *conversation.ThreadFullError
	)
	switch {
	case errors.As(err, &unknownTool):
		kind = "unknown_tool"
	case errors.As(err, &unknownCont):
		kind = "unknown_continuation"
		metadata["continuation_id"] = unknownCont.ID
	case errors.As(err, &full):
		kind = "conversation_full"
		metadata["continuation_id"] = full.ID
		metadata["max_turns"] = conversation.MaxTurns
	case errors.As(err, &invalid):
		kind = "invalid_request"
		metadata["field"] = invalid.Field
	case errors.As(err, &validation):
		kind = "invalid_request"
		metadata["mode"] = validation.Mode
	case errors.As(err, &unavailable):
		kind = "model_unavailable"
		metadata["model"] = unavailable.Model
		metadata["available_models"] = unavailable.Available
	case errors.As(err, &tooLarge):
		kind = "code_too_large"
		metadata["total_estimated_tokens"] = tooLarge.TotalEstimatedTokens
		metadata["limit"] = tooLarge.Limit
		metadata["model_name"] = tooLarge.ModelName
		metadata["model_context_window"] = tooLarge.ContextWindow
	case errors.Is(err, tokens.ErrUnsupportedContentType):
		kind = "unsupported_content_type"
	case errors.Is(err, provider.ErrNoProviders):
		kind = "model_unavailable"
	}
	metadata["error_kind"] = kind

	return marshalEnvelope(map[string]any{
		"status":       "error",
		"content":      err.Error(),
		"content_type": "text",
		"metadata":     metadata,
	})
}

// errorEnvelopeWith builds an error envelope without an originating error
// value.
func errorEnvelopeWith(kind, message string, metadata map[string]any) string {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["error_kind"] = kind
	return marshalEnvelope(map[string]any{
		"status":       "error",
		"content":      message,
		"content_type": "text",
		"metadata":     metadata,
	})
}

// envelopeStatus pulls the status field back out of a serialised envelope
// for activity logging.
func envelopeStatus(env string) string {
	var probe struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(env), &probe); err != nil || probe.Status == "" {
		if strings.Contains(env, `"error"`) {
			return "error"
		}
		return "unknown"
	}
	return probe.Status
}
