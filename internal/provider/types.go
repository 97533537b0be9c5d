// Package provider implements the LLM provider registry, model capability
// tables, and the model resolver.
//
// Providers are registered at process init in a fixed priority order driven
// by environment keys: native APIs first (Gemini, OpenAI, X.AI, DIAL), then
// a custom OpenAI-compatible endpoint, then the OpenRouter aggregator.
package provider

import (
	"context"
	"errors"
)

// TokenizerKind selects how text is counted for a model.
type TokenizerKind int

const (
	// TokenizerRatio4 is the ⌊len/4⌋ heuristic for models with no exact
	// tokeniser available.
	TokenizerRatio4 TokenizerKind = iota
	// TokenizerO200K is tiktoken o200k_base (gpt-4o / gpt-4.1 / o3 / o4).
	TokenizerO200K
	// TokenizerCL100K is tiktoken cl100k_base (older OpenAI-family models).
	TokenizerCL100K
	// TokenizerProviderSpecific defers to the provider's own counter.
	TokenizerProviderSpecific
)

// Category groups tools by the kind of model they need. Fast-response tools
// prefer cheap low-latency models; extended-reasoning tools prefer the
// strongest configured model.
type Category int

const (
	CategoryFastResponse Category = iota
	CategoryExtendedReasoning
)

func (c Category) String() string {
	if c == CategoryExtendedReasoning {
		return "extended_reasoning"
	}
	return "fast_response"
}

// ModelCapabilities describes a concrete model.
type ModelCapabilities struct {
	ModelName                string        `yaml:"model_name"`
	FriendlyName             string        `yaml:"friendly_name"`
	ContextWindow            int           `yaml:"context_window"`
	MaxOutputTokens          int           `yaml:"max_output_tokens"`
	SupportsImages           bool          `yaml:"supports_images"`
	SupportsExtendedThinking bool          `yaml:"supports_extended_thinking"`
	SupportsFunctionCalling  bool          `yaml:"supports_function_calling"`
	Tokenizer                TokenizerKind `yaml:"-"`
}

// GenerateRequest is a single provider call.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  *float32 // nil = provider default
	MaxTokens    int      // 0 = provider default
	ThinkingMode string   // "minimal".."max"; providers map or ignore
	Images       []string // absolute paths
}

// GenerateResponse is the provider's answer.
type GenerateResponse struct {
	Content      string
	Model        string // concrete model that answered
	FriendlyName string // provider display name, e.g. "Gemini"
	InputTokens  int    // 0 when the provider does not report usage
	OutputTokens int
}

// Provider is the abstract capability the core orchestrates. Implementations
// must honour ctx cancellation in GenerateContent.
type Provider interface {
	// Name returns the registry identifier, e.g. "google" or "openrouter".
	Name() string

	// FriendlyName returns the display name used in responses and logs.
	FriendlyName() string

	// ListModels returns every model name and alias this provider serves,
	// after allow-list filtering.
	ListModels() []string

	// Capabilities resolves a model name or alias to its descriptor.
	Capabilities(model string) (ModelCapabilities, bool)

	// GenerateContent performs one model call.
	GenerateContent(ctx context.Context, req GenerateRequest) (GenerateResponse, error)

	// CountTokens counts text with the provider's own tokeniser.
	// ok=false means the provider has no exact counter for this model and
	// the caller should fall back to the shared estimator.
	CountTokens(text, model string) (count int, ok bool)
}

// ErrNoProviders indicates that no provider API key is configured.
var ErrNoProviders = errors.New("provider: no providers configured; set at least one of GEMINI_API_KEY, OPENAI_API_KEY, XAI_API_KEY, DIAL_API_KEY, OPENROUTER_API_KEY or CUSTOM_API_URL")
