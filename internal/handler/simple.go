package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
	"github.com/orchestra-mcp/orchestra/internal/tools"
	"github.com/orchestra-mcp/orchestra/internal/workflow"
)

// runSimple executes a one-shot tool: local renderers answer directly,
// model-backed tools go prepare prompt → generate → format.
func (h *Handler) runSimple(ctx context.Context, desc *catalogue.Descriptor, args map[string]any, rm *provider.Resolved, thread *conversation.ThreadContext) (string, error) {
	switch desc.Name {
	case "listmodels":
		return h.successEnvelope(desc, "success", tools.RenderListModels(h.providers), "", nil), nil
	case "version":
		return h.successEnvelope(desc, "success", tools.RenderVersion(h.version, h.providers, len(h.catalogue.List())), "", nil), nil
	case "challenge":
		prompt := stringArg(args, "prompt")
		if prompt == "" {
			return "", &workflow.InvalidStepError{Field: "prompt", Reason: "must carry the statement to reassess"}
		}
		return h.successEnvelope(desc, "success", tools.BuildChallenge(prompt), "", nil), nil
	}
	return h.runModelTool(ctx, desc, args, rm, thread)
}

func (h *Handler) runModelTool(ctx context.Context, desc *catalogue.Descriptor, args map[string]any, rm *provider.Resolved, thread *conversation.ThreadContext) (string, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		return "", &workflow.InvalidStepError{Field: "prompt", Reason: "must be a non-empty request"}
	}

	threadID := ""
	if thread != nil {
		threadID = thread.ID
		// The exchange needs room for both its turns; refusing before the
		// provider call keeps the thread and its history consistent.
		if len(thread.Turns)+2 > conversation.MaxTurns {
			return "", &conversation.ThreadFullError{ID: threadID}
		}
	} else {
		threadID = h.store.Create(desc.Name, args, "")
	}

	files := h.files.ExpandPaths(stringsArg(args, "files"))
	if !h.store.AddTurn(threadID, conversation.Turn{
		Role:     "user",
		Content:  prompt,
		ToolName: desc.Name,
		Files:    files,
		Images:   stringsArg(args, "images"),
	}) {
		return "", &conversation.ThreadFullError{ID: threadID}
	}

	alloc := tokens.NewAllocation(rm.Capabilities.ContextWindow)
	mc := conversation.ModelContext{
		Model:      rm.Name,
		Allocation: alloc,
		Estimator:  h.estimator,
		Counter:    rm.Provider,
		Files:      h.files,
	}

	var sb strings.Builder
	if snap := h.store.Get(threadID); snap != nil && len(snap.Turns) > 1 {
		history, _ := conversation.BuildHistory(snap, mc)
		sb.WriteString(history)
		sb.WriteString("\n")
	} else if len(files) > 0 {
		// First call: embed the declared files directly.
		block := h.files.ReadFiles(files, fileio.ReadOptions{})
		sb.WriteString("=== CONTEXT FILES ===\n")
		sb.WriteString(block)
		sb.WriteString("=== END CONTEXT FILES ===\n\n")
	}
	sb.WriteString("=== CURRENT REQUEST ===\n")
	sb.WriteString(prompt)

	resp, err := rm.Provider.GenerateContent(ctx, provider.GenerateRequest{
		Model:        rm.Name,
		SystemPrompt: h.prompts.Get(desc.SystemPromptID),
		Prompt:       sb.String(),
		Temperature:  temperatureFor(desc, args),
		MaxTokens:    alloc.ResponseTokens,
		ThinkingMode: stringArg(args, "thinking_mode"),
		Images:       stringsArg(args, "images"),
	})
	if err != nil {
		return "", fmt.Errorf("provider %s failed: %w", rm.Provider.FriendlyName(), err)
	}

	if !h.store.AddTurn(threadID, conversation.Turn{
		Role:          "assistant",
		Content:       resp.Content,
		ToolName:      desc.Name,
		ModelName:     rm.Name,
		ModelProvider: rm.Provider.Name(),
	}) {
		return "", &conversation.ThreadFullError{ID: threadID}
	}

	metadata := map[string]any{
		"model_used":    rm.Name,
		"provider_used": rm.Provider.Name(),
	}
	if resp.InputTokens > 0 || resp.OutputTokens > 0 {
		metadata["input_tokens"] = resp.InputTokens
		metadata["output_tokens"] = resp.OutputTokens
	}

	// A structured clarification request from the model becomes the envelope
	// status so the client knows to supply files and retry.
	status := "success"
	if s := clarificationStatus(resp.Content); s != "" {
		status = s
	}
	return h.successEnvelope(desc, status, resp.Content, threadID, metadata), nil
}

// clarificationStatus detects a JSON clarification request in a simple
// tool's answer. Returns "" for ordinary prose.
func clarificationStatus(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "{") {
		return ""
	}
	var probe struct {
		Status string `json:"status"`
	}
	if json.Unmarshal([]byte(text), &probe) != nil {
		return ""
	}
	if probe.Status == "files_required_to_continue" {
		return probe.Status
	}
	return ""
}

func (h *Handler) successEnvelope(desc *catalogue.Descriptor, status, content, threadID string, metadata map[string]any) string {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["tool_name"] = desc.Name

	env := map[string]any{
		"status":       status,
		"content":      content,
		"content_type": "text",
		"metadata":     metadata,
	}
	if threadID != "" {
		remaining := conversation.MaxTurns
		if snap := h.store.Get(threadID); snap != nil {
			remaining = conversation.MaxTurns - len(snap.Turns)
		}
		env["continuation_id"] = threadID
		env["continuation_offer"] = map[string]any{
			"continuation_id": threadID,
			"remaining_turns": remaining,
			"note": fmt.Sprintf(
				"You can continue this conversation for %d more exchanges by passing continuation_id.",
				remaining),
		}
	}
	return marshalEnvelope(env)
}

func temperatureFor(desc *catalogue.Descriptor, args map[string]any) *float32 {
	if v, ok := args["temperature"].(float64); ok {
		t := float32(v)
		return &t
	}
	t := desc.DefaultTemp
	return &t
}
