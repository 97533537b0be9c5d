package provider

import "strings"

// capabilityEntry maps a model-name prefix to its descriptor. Tables are
// ordered from most to least specific prefix to avoid short-prefix false
// matches (same ordering rule the lookup relies on for "o3" vs "o3-mini").
type capabilityEntry struct {
	prefix string
	caps   ModelCapabilities
}

// lookupByPrefix scans a capability table for the first matching prefix.
// Provider prefixes like "openai/" are stripped before matching.
func lookupByPrefix(table []capabilityEntry, model string) (ModelCapabilities, bool) {
	lower := strings.ToLower(model)
	parts := strings.Split(lower, "/")
	base := parts[len(parts)-1]

	for _, e := range table {
		if strings.HasPrefix(base, e.prefix) {
			caps := e.caps
			caps.ModelName = model
			return caps, true
		}
	}
	return ModelCapabilities{}, false
}

// geminiCapabilities covers the Gemini model family.
var geminiCapabilities = []capabilityEntry{
	{"gemini-2.5-pro", ModelCapabilities{
		FriendlyName: "Gemini", ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		SupportsImages: true, SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerProviderSpecific,
	}},
	{"gemini-2.5-flash", ModelCapabilities{
		FriendlyName: "Gemini", ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		SupportsImages: true, SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerProviderSpecific,
	}},
	{"gemini-2.0-flash", ModelCapabilities{
		FriendlyName: "Gemini", ContextWindow: 1_048_576, MaxOutputTokens: 8_192,
		SupportsImages: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerProviderSpecific,
	}},
}

// geminiAliases are the shorthands users type instead of full model ids.
var geminiAliases = map[string]string{
	"pro":   "gemini-2.5-pro",
	"flash": "gemini-2.5-flash",
}

// openaiCapabilities covers the OpenAI reasoning and GPT families.
var openaiCapabilities = []capabilityEntry{
	{"o4-mini", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 200_000, MaxOutputTokens: 100_000,
		SupportsImages: true, SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerO200K,
	}},
	{"o3-mini", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 200_000, MaxOutputTokens: 100_000,
		SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerO200K,
	}},
	{"o3-pro", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 200_000, MaxOutputTokens: 100_000,
		SupportsImages: true, SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerO200K,
	}},
	{"o3", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 200_000, MaxOutputTokens: 100_000,
		SupportsImages: true, SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerO200K,
	}},
	{"gpt-4.1", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 1_047_576, MaxOutputTokens: 32_768,
		SupportsImages: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerO200K,
	}},
	{"gpt-4o", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 128_000, MaxOutputTokens: 16_384,
		SupportsImages: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerO200K,
	}},
	{"gpt-4", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 8_192, MaxOutputTokens: 8_192,
		SupportsFunctionCalling: true,
		Tokenizer:               TokenizerCL100K,
	}},
	{"gpt-3.5-turbo", ModelCapabilities{
		FriendlyName: "OpenAI", ContextWindow: 16_385, MaxOutputTokens: 4_096,
		SupportsFunctionCalling: true,
		Tokenizer:               TokenizerCL100K,
	}},
}

var openaiAliases = map[string]string{
	"mini":   "o4-mini",
	"o3mini": "o3-mini",
	"o4mini": "o4-mini",
}

// xaiCapabilities covers the GROK family.
var xaiCapabilities = []capabilityEntry{
	{"grok-4", ModelCapabilities{
		FriendlyName: "X.AI", ContextWindow: 256_000, MaxOutputTokens: 64_000,
		SupportsImages: true, SupportsExtendedThinking: true, SupportsFunctionCalling: true,
		Tokenizer: TokenizerRatio4,
	}},
	{"grok-3-fast", ModelCapabilities{
		FriendlyName: "X.AI", ContextWindow: 131_072, MaxOutputTokens: 32_768,
		SupportsFunctionCalling: true,
		Tokenizer:               TokenizerRatio4,
	}},
	{"grok-3", ModelCapabilities{
		FriendlyName: "X.AI", ContextWindow: 131_072, MaxOutputTokens: 32_768,
		SupportsFunctionCalling: true,
		Tokenizer:               TokenizerRatio4,
	}},
}

var xaiAliases = map[string]string{
	"grok":     "grok-4",
	"grokfast": "grok-3-fast",
}

// TokenizerForModel selects the tiktoken encoding family for a model name.
// Used by the token budgeter when the resolved provider has no exact counter.
func TokenizerForModel(model string) TokenizerKind {
	lower := strings.ToLower(model)
	parts := strings.Split(lower, "/")
	base := parts[len(parts)-1]

	switch {
	case strings.HasPrefix(base, "gpt-4o"),
		strings.HasPrefix(base, "gpt-4.1"),
		strings.HasPrefix(base, "gpt-5"),
		strings.HasPrefix(base, "o3"),
		strings.HasPrefix(base, "o4"):
		return TokenizerO200K
	case strings.HasPrefix(base, "gpt-"),
		strings.HasPrefix(base, "text-embedding"):
		return TokenizerCL100K
	default:
		return TokenizerRatio4
	}
}

// defaultCustomCapabilities is the conservative descriptor for models served
// by a custom endpoint or aggregator with no manifest entry.
func defaultCustomCapabilities(model, friendly string) ModelCapabilities {
	return ModelCapabilities{
		ModelName:       model,
		FriendlyName:    friendly,
		ContextWindow:   32_768,
		MaxOutputTokens: 8_192,
		Tokenizer:       TokenizerForModel(model),
	}
}
