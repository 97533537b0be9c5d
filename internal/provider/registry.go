package provider

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/orchestra-mcp/orchestra/internal/config"
)

// Registry holds the configured providers in priority order: native APIs
// before the custom endpoint before the OpenRouter aggregator. When two
// providers both claim a model name, the earlier one wins.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	capsCache map[string]ModelCapabilities // per (provider, model) memo
}

// NewRegistryFromEnv detects configured providers from the environment and
// registers them in priority order. Returns ErrNoProviders when nothing is
// configured.
func NewRegistryFromEnv(ctx context.Context) (*Registry, error) {
	r := &Registry{capsCache: make(map[string]ModelCapabilities)}

	manifest, err := LoadManifest(config.CustomModelsPath())
	if err != nil {
		log.Printf("[Registry] Ignoring capability manifest: %v", err)
	}

	if key := config.APIKey("GEMINI_API_KEY"); key != "" {
		p, err := newGeminiProvider(ctx, key, config.AllowedModels("GOOGLE"))
		if err != nil {
			return nil, err
		}
		r.register(p)
	}
	if key := config.APIKey("OPENAI_API_KEY"); key != "" {
		r.register(newOpenAICompat(openAICompatConfig{
			Name: "openai", Friendly: "OpenAI", APIKey: key,
			Table: openaiCapabilities, Aliases: openaiAliases,
			Allowed: config.AllowedModels("OPENAI"),
		}))
	}
	if key := config.APIKey("XAI_API_KEY"); key != "" {
		r.register(newOpenAICompat(openAICompatConfig{
			Name: "xai", Friendly: "X.AI", APIKey: key,
			BaseURL: "https://api.x.ai/v1",
			Table:   xaiCapabilities, Aliases: xaiAliases,
			Allowed: config.AllowedModels("XAI"),
		}))
	}
	if key := config.APIKey("DIAL_API_KEY"); key != "" {
		r.register(newOpenAICompat(openAICompatConfig{
			Name: "dial", Friendly: "DIAL", APIKey: key,
			BaseURL: "https://core.dialx.ai/openai/v1",
			Table:   openaiCapabilities, Aliases: openaiAliases,
			Allowed:  config.AllowedModels("DIAL"),
			Manifest: manifest,
		}))
	}
	if url := config.CustomAPIURL(); url != "" {
		// Empty key permitted: local endpoints (Ollama, vLLM) need none.
		r.register(newOpenAICompat(openAICompatConfig{
			Name: "custom", Friendly: "Custom", APIKey: config.CustomAPIKey(),
			BaseURL:     url,
			Manifest:    manifest,
			AcceptAnyID: true,
		}))
	}
	if key := config.APIKey("OPENROUTER_API_KEY"); key != "" {
		r.register(newOpenAICompat(openAICompatConfig{
			Name: "openrouter", Friendly: "OpenRouter", APIKey: key,
			BaseURL:     "https://openrouter.ai/api/v1",
			Allowed:     config.AllowedModels("OPENROUTER"),
			Manifest:    manifest,
			AcceptAnyID: true,
		}))
	}

	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}
	return r, nil
}

// NewRegistry assembles a registry from explicit providers, in order.
// Exported for tests and embedding.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{capsCache: make(map[string]ModelCapabilities)}
	for _, p := range providers {
		r.register(p)
	}
	return r
}

func (r *Registry) register(p Provider) {
	r.providers = append(r.providers, p)
	log.Printf("[Registry] Registered provider %s (%s)", p.Name(), p.FriendlyName())
}

// Providers returns the registered providers in priority order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// ProviderForModel finds the highest-priority provider serving the model.
func (r *Registry) ProviderForModel(model string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if _, ok := p.Capabilities(model); ok {
			return p, true
		}
	}
	return nil, false
}

// Capabilities resolves and memoises a model's descriptor across providers.
func (r *Registry) Capabilities(model string) (ModelCapabilities, bool) {
	key := strings.ToLower(model)

	r.mu.RLock()
	if caps, ok := r.capsCache[key]; ok {
		r.mu.RUnlock()
		return caps, true
	}
	r.mu.RUnlock()

	p, ok := r.ProviderForModel(model)
	if !ok {
		return ModelCapabilities{}, false
	}
	caps, _ := p.Capabilities(model)

	r.mu.Lock()
	r.capsCache[key] = caps
	r.mu.Unlock()
	return caps, true
}

// AllModels returns every model name served by any provider, deduplicated
// (first provider wins) and sorted.
func (r *Registry) AllModels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.Providers() {
		for _, m := range p.ListModels() {
			key := strings.ToLower(m)
			if !seen[key] {
				seen[key] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// categoryPreferences orders fallback candidates per tool category. The
// first configured match wins; the lists lean on speed for fast-response
// tools and on reasoning depth for extended-reasoning tools.
var categoryPreferences = map[Category][]string{
	CategoryFastResponse: {
		"gemini-2.5-flash", "gpt-4.1", "o4-mini", "grok-3-fast", "gemini-2.0-flash", "gpt-4o",
	},
	CategoryExtendedReasoning: {
		"gemini-2.5-pro", "o3", "o4-mini", "grok-4", "gemini-2.5-flash", "gpt-4.1",
	},
}

// PreferredFallback picks the concrete model behind the "auto" sentinel for
// a tool category. When no preference matches, the first model of the
// highest-priority provider is used.
func (r *Registry) PreferredFallback(category Category) (string, error) {
	for _, candidate := range categoryPreferences[category] {
		if _, ok := r.ProviderForModel(candidate); ok {
			return candidate, nil
		}
	}
	for _, p := range r.Providers() {
		if models := p.ListModels(); len(models) > 0 {
			return models[0], nil
		}
	}
	return "", fmt.Errorf("provider: no model available for category %s: %w", category, ErrNoProviders)
}
