package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/workflow"
)

// consultedModel is one entry of the consensus models list.
type consultedModel struct {
	Model        string `json:"model"`
	Stance       string `json:"stance"`        // "for", "against" or neutral when empty
	StancePrompt string `json:"stance_prompt"` // optional custom framing
}

// runConsensus drives the consensus tool: one model consulted per step, the
// final step synthesising every recorded answer. The synthesis itself is
// the expert pass, so the generic engine is not involved.
func (h *Handler) runConsensus(ctx context.Context, desc *catalogue.Descriptor, args map[string]any, rm *provider.Resolved) (string, error) {
	req, err := workflow.DecodeStep(args)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Step) == "" {
		return "", &workflow.InvalidStepError{Field: "step", Reason: "must carry the proposal to evaluate"}
	}
	if strings.TrimSpace(req.Findings) == "" {
		return "", &workflow.InvalidStepError{Field: "findings", Reason: "must record the caller's own assessment"}
	}

	models := decodeModels(args["models"])
	threadID := req.ContinuationID
	if threadID == "" {
		if req.StepNumber != 1 {
			return "", &workflow.InvalidStepError{Field: "continuation_id", Reason: "is required after step 1"}
		}
		if len(models) == 0 {
			return "", &workflow.InvalidStepError{Field: "models", Reason: "must name at least one model on step 1"}
		}
		threadID = h.store.Create(desc.Name, args, "")
	} else {
		thread := h.store.Get(threadID)
		if thread == nil {
			return "", &workflow.UnknownThreadError{ID: threadID}
		}
		if len(thread.Turns)+2 > conversation.MaxTurns {
			return "", &conversation.ThreadFullError{ID: threadID}
		}
		if len(models) == 0 {
			models = decodeModels(thread.InitialContext["models"])
		}
	}

	if !h.store.AddTurn(threadID, conversation.Turn{
		Role:     "user",
		Content:  fmt.Sprintf("Step %d: %s\n\nAssessment: %s", req.StepNumber, req.Step, req.Findings),
		ToolName: desc.Name,
		Files:    req.RelevantFiles,
	}) {
		return "", &conversation.ThreadFullError{ID: threadID}
	}

	env := map[string]any{
		"step_number":        req.StepNumber,
		"total_steps":        req.TotalSteps,
		"next_step_required": req.NextStepRequired,
		"continuation_id":    threadID,
	}

	if req.NextStepRequired {
		idx := req.StepNumber - 1
		if idx >= len(models) {
			return "", &workflow.InvalidStepError{
				Field:  "step_number",
				Reason: fmt.Sprintf("exceeds the %d configured models; set next_step_required=false to synthesise", len(models)),
			}
		}
		response, err := h.consultOne(ctx, desc, models[idx], req)
		if err != nil {
			env["status"] = "error"
			env["content"] = fmt.Sprintf("consulting %s failed: %v", models[idx].Model, err)
			return marshalEnvelope(env), nil
		}

		if !h.store.AddTurn(threadID, conversation.Turn{
			Role:          "assistant",
			Content:       response.Content,
			ToolName:      desc.Name,
			ModelName:     response.Model,
			ModelProvider: response.FriendlyName,
		}) {
			env["status"] = "error"
			env["content"] = (&conversation.ThreadFullError{ID: threadID}).Error()
			return marshalEnvelope(env), nil
		}

		env["status"] = "pause_for_consensus"
		env["model_consulted"] = models[idx].Model
		env["model_stance"] = models[idx].Stance
		env["model_response"] = response.Content
		env["required_actions"] = []string{
			"Review this model's position against your own assessment",
			"Call again with the next step to consult the remaining models, or with next_step_required=false to synthesise",
		}
		return marshalEnvelope(env), nil
	}

	synthesis, err := h.synthesise(ctx, desc, req, threadID, rm)
	if err != nil {
		env["status"] = "error"
		env["content"] = fmt.Sprintf("consensus synthesis failed: %v", err)
		return marshalEnvelope(env), nil
	}
	if !h.store.AddTurn(threadID, conversation.Turn{
		Role:          "assistant",
		Content:       synthesis,
		ToolName:      desc.Name,
		ModelName:     rm.Name,
		ModelProvider: rm.Provider.Name(),
	}) {
		env["status"] = "error"
		env["content"] = (&conversation.ThreadFullError{ID: threadID}).Error()
		return marshalEnvelope(env), nil
	}

	env["status"] = "consensus_complete"
	env["complete_consensus"] = map[string]any{
		"models_consulted": modelNames(models),
		"synthesis":        synthesis,
	}
	return marshalEnvelope(env), nil
}

// consultOne asks a single model for its stance-framed opinion.
func (h *Handler) consultOne(ctx context.Context, desc *catalogue.Descriptor, m consultedModel, req *workflow.StepRequest) (provider.GenerateResponse, error) {
	resolved, err := h.resolver.Resolve(m.Model, desc.Name, desc.Category)
	if err != nil {
		return provider.GenerateResponse{}, err
	}

	framing := m.StancePrompt
	if framing == "" {
		switch m.Stance {
		case "for":
			framing = "Argue the strongest good-faith case in favour of the proposal, then note any hard blockers honestly."
		case "against":
			framing = "Argue the strongest good-faith case against the proposal, then concede any clearly sound parts."
		default:
			framing = "Evaluate the proposal on its merits, taking no predetermined side."
		}
	}

	temp := desc.DefaultTemp
	return resolved.Provider.GenerateContent(ctx, provider.GenerateRequest{
		Model:        resolved.Name,
		SystemPrompt: h.prompts.Get(desc.SystemPromptID),
		Prompt:       fmt.Sprintf("%s\n\nProposal:\n%s\n\nCaller's assessment so far:\n%s", framing, req.Step, req.Findings),
		Temperature:  &temp,
	})
}

// synthesise folds every consulted answer into the final verdict.
func (h *Handler) synthesise(ctx context.Context, desc *catalogue.Descriptor, req *workflow.StepRequest, threadID string, rm *provider.Resolved) (string, error) {
	thread := h.store.Get(threadID)
	var sb strings.Builder
	sb.WriteString("Synthesise the following model consultations into a single recommendation. ")
	sb.WriteString("Name the points of agreement, the genuine disagreements, and the decision you would take.\n")
	if thread != nil {
		n := 0
		for _, turn := range thread.Turns {
			if turn.Role == "assistant" && turn.ModelName != "" {
				n++
				fmt.Fprintf(&sb, "\n--- Consultation %d (%s) ---\n%s\n", n, turn.ModelName, turn.Content)
			}
		}
	}
	fmt.Fprintf(&sb, "\nProposal under evaluation:\n%s\n", req.Step)

	temp := desc.DefaultTemp
	resp, err := rm.Provider.GenerateContent(ctx, provider.GenerateRequest{
		Model:        rm.Name,
		SystemPrompt: h.prompts.Get(desc.SystemPromptID),
		Prompt:       sb.String(),
		Temperature:  &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func decodeModels(v any) []consultedModel {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]consultedModel, 0, len(items))
	for _, item := range items {
		switch m := item.(type) {
		case map[string]any:
			cm := consultedModel{}
			cm.Model, _ = m["model"].(string)
			cm.Stance, _ = m["stance"].(string)
			cm.StancePrompt, _ = m["stance_prompt"].(string)
			if cm.Model != "" {
				out = append(out, cm)
			}
		case string:
			if m != "" {
				out = append(out, consultedModel{Model: m})
			}
		}
	}
	return out
}

func modelNames(models []consultedModel) []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Model
	}
	return names
}
