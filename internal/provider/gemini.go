package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// geminiProvider serves the Gemini family through the Google Gen AI SDK.
// Unlike the OpenAI-compatible endpoints it exposes an exact server-side
// token counter, so CountTokens is implemented rather than deferred.
type geminiProvider struct {
	client  *genai.Client
	allowed map[string]bool
}

func newGeminiProvider(ctx context.Context, apiKey string, allowed map[string]bool) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider google: create client: %w", err)
	}
	return &geminiProvider{client: client, allowed: allowed}, nil
}

func (p *geminiProvider) Name() string         { return "google" }
func (p *geminiProvider) FriendlyName() string { return "Gemini" }

func (p *geminiProvider) resolveAlias(model string) string {
	if full, ok := geminiAliases[strings.ToLower(model)]; ok {
		return full
	}
	return model
}

func (p *geminiProvider) permitted(model string) bool {
	if p.allowed == nil {
		return true
	}
	return p.allowed[strings.ToLower(model)]
}

func (p *geminiProvider) ListModels() []string {
	var out []string
	for _, e := range geminiCapabilities {
		if p.permitted(e.prefix) {
			out = append(out, e.prefix)
		}
	}
	for alias, full := range geminiAliases {
		if p.permitted(alias) || p.permitted(full) {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func (p *geminiProvider) Capabilities(model string) (ModelCapabilities, bool) {
	full := p.resolveAlias(model)
	if !p.permitted(model) && !p.permitted(full) {
		return ModelCapabilities{}, false
	}
	return lookupByPrefix(geminiCapabilities, full)
}

func (p *geminiProvider) GenerateContent(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	model := p.resolveAlias(req.Model)

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return GenerateResponse{}, ctx.Err()
		}
		return GenerateResponse{}, fmt.Errorf("provider google: generate: %w", err)
	}

	out := GenerateResponse{
		Content:      resp.Text(),
		Model:        model,
		FriendlyName: p.FriendlyName(),
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.InputTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
	}
	return out, nil
}

// CountTokens asks the Gemini API for an exact count. A background context
// is used because the budgeter calls this outside any single request; the
// SDK applies its own short deadline.
func (p *geminiProvider) CountTokens(text, model string) (int, bool) {
	model = p.resolveAlias(model)
	resp, err := p.client.Models.CountTokens(context.Background(), model, genai.Text(text), nil)
	if err != nil || resp == nil {
		return 0, false
	}
	return int(resp.TotalTokens), true
}
