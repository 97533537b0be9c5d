package provider

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	openailib "github.com/sashabaranov/go-openai"
)

// openAICompat serves every OpenAI-compatible chat endpoint: OpenAI itself,
// X.AI, DIAL, OpenRouter, and user-supplied custom endpoints. Only the base
// URL, capability table and alias map differ per instance.
type openAICompat struct {
	name         string
	friendly     string
	client       *openailib.Client
	table        []capabilityEntry
	aliases      map[string]string
	allowed      map[string]bool // nil = unrestricted
	extraModels  []string        // manifest-declared models (custom/openrouter)
	manifest     map[string]ModelCapabilities
	maxRetries   int
	acceptAnyID  bool // aggregators serve arbitrary "org/model" ids
}

// openAICompatConfig bundles the per-endpoint knobs.
type openAICompatConfig struct {
	Name        string
	Friendly    string
	APIKey      string
	BaseURL     string
	Table       []capabilityEntry
	Aliases     map[string]string
	Allowed     map[string]bool
	Manifest    map[string]ModelCapabilities
	AcceptAnyID bool
}

func newOpenAICompat(cfg openAICompatConfig) *openAICompat {
	clientCfg := openailib.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var extras []string
	for name := range cfg.Manifest {
		extras = append(extras, name)
	}
	sort.Strings(extras)

	return &openAICompat{
		name:        cfg.Name,
		friendly:    cfg.Friendly,
		client:      openailib.NewClientWithConfig(clientCfg),
		table:       cfg.Table,
		aliases:     cfg.Aliases,
		allowed:     cfg.Allowed,
		extraModels: extras,
		manifest:    cfg.Manifest,
		maxRetries:  2,
		acceptAnyID: cfg.AcceptAnyID,
	}
}

func (p *openAICompat) Name() string         { return p.name }
func (p *openAICompat) FriendlyName() string { return p.friendly }

// resolveAlias maps shorthands like "mini" to their full model ids.
func (p *openAICompat) resolveAlias(model string) string {
	if full, ok := p.aliases[strings.ToLower(model)]; ok {
		return full
	}
	return model
}

func (p *openAICompat) permitted(model string) bool {
	if p.allowed == nil {
		return true
	}
	return p.allowed[strings.ToLower(model)]
}

// ListModels returns table prefixes, aliases, and manifest models, after
// allow-list filtering.
func (p *openAICompat) ListModels() []string {
	var out []string
	for _, e := range p.table {
		if p.permitted(e.prefix) {
			out = append(out, e.prefix)
		}
	}
	for alias, full := range p.aliases {
		if p.permitted(alias) || p.permitted(full) {
			out = append(out, alias)
		}
	}
	for _, m := range p.extraModels {
		if p.permitted(m) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func (p *openAICompat) Capabilities(model string) (ModelCapabilities, bool) {
	full := p.resolveAlias(model)
	if !p.permitted(model) && !p.permitted(full) {
		return ModelCapabilities{}, false
	}
	if caps, ok := p.manifest[strings.ToLower(full)]; ok {
		caps.ModelName = full
		if caps.FriendlyName == "" {
			caps.FriendlyName = p.friendly
		}
		return caps, true
	}
	if caps, ok := lookupByPrefix(p.table, full); ok {
		return caps, true
	}
	if p.acceptAnyID && strings.Contains(full, "/") {
		return defaultCustomCapabilities(full, p.friendly), true
	}
	return ModelCapabilities{}, false
}

// GenerateContent performs one chat-completion call with bounded retries.
// Only the final attempt's error is surfaced; ctx cancellation aborts the
// backoff wait immediately (no partial result).
func (p *openAICompat) GenerateContent(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	model := p.resolveAlias(req.Model)

	msgs := make([]openailib.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openailib.ChatCompletionMessage{
			Role:    openailib.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	msgs = append(msgs, openailib.ChatCompletionMessage{
		Role:    openailib.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	ccr := openailib.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.Temperature != nil {
		ccr.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		ccr.MaxTokens = req.MaxTokens
	}

	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		resp, lastErr = p.client.CreateChatCompletion(ctx, ccr)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return GenerateResponse{}, ctx.Err()
		}
		if attempt < p.maxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[Provider] %s retry %d/%d after %v: %v", p.name, attempt+1, p.maxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return GenerateResponse{}, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return GenerateResponse{}, fmt.Errorf("provider %s: call failed after %d retries: %w", p.name, p.maxRetries, lastErr)
	}
	if len(resp.Choices) == 0 {
		return GenerateResponse{}, fmt.Errorf("provider %s: no choices returned", p.name)
	}

	return GenerateResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        model,
		FriendlyName: p.friendly,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// CountTokens reports no exact counter; OpenAI-family counting is done by
// the shared tiktoken estimator keyed off the capability table.
func (p *openAICompat) CountTokens(_, _ string) (int, bool) {
	return 0, false
}
