package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/orchestra-mcp/orchestra/internal/cache"
)

// aggregatorFlavours are OpenRouter suffix variants that belong to the model
// id itself, not to an option: "openai/gpt-4o:free" names one model.
var aggregatorFlavours = map[string]bool{
	"free":     true,
	"beta":     true,
	"preview":  true,
	"extended": true,
	"nitro":    true,
}

// ParseModel splits "name[:option]" user input.
//
// Rules, in order:
//  1. URL-bearing strings (containing "://") are never split.
//  2. "org/model:flavour" with a recognised aggregator flavour stays whole.
//  3. Otherwise split on the first ":".
func ParseModel(input string) (name, option string) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "://") {
		return input, ""
	}
	if strings.Count(input, "/") == 1 && strings.Count(input, ":") == 1 {
		suffix := input[strings.Index(input, ":")+1:]
		if aggregatorFlavours[strings.ToLower(suffix)] {
			return input, ""
		}
	}
	if i := strings.Index(input, ":"); i >= 0 {
		return strings.TrimSpace(input[:i]), strings.TrimSpace(input[i+1:])
	}
	return input, ""
}

// FormatModel re-emits a parsed model string. FormatModel(ParseModel(s)) is
// identity for well-formed input.
func FormatModel(name, option string) string {
	if option == "" {
		return name
	}
	return name + ":" + option
}

// Resolved is the per-request binding of a model name to a provider.
type Resolved struct {
	Name         string
	Option       string
	Provider     Provider
	Capabilities ModelCapabilities
}

// ModelUnavailableError carries the diagnostic for an unknown model.
type ModelUnavailableError struct {
	Model     string
	Tool      string
	Available []string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf(
		"model %q is not available for tool %q; configured models: %s",
		e.Model, e.Tool, strings.Join(e.Available, ", "),
	)
}

// Resolver maps logical model names (including the "auto" sentinel) to
// providers, caching auto picks and validation verdicts with TTL.
type Resolver struct {
	registry     *Registry
	defaultModel string
	autoCache    *cache.Cache[string]
	verdictCache *cache.Cache[error] // nil value = validated OK
}

const (
	autoCacheTTL    = 5 * time.Minute
	verdictCacheTTL = 5 * time.Minute
)

// NewResolver wires a Resolver to a registry. defaultModel is the process
// default ("auto" or a concrete id) from DEFAULT_MODEL.
func NewResolver(registry *Registry, defaultModel string) *Resolver {
	return &Resolver{
		registry:     registry,
		defaultModel: defaultModel,
		autoCache:    cache.New[string](256, autoCacheTTL),
		verdictCache: cache.New[error](1024, verdictCacheTTL),
	}
}

// VerdictCache exposes the model-validation cache for stats/cleanup.
func (r *Resolver) VerdictCache() *cache.Cache[error] { return r.verdictCache }

// Resolve turns user model input into a provider binding. Empty input falls
// back to the process default; "auto" picks by tool category.
func (r *Resolver) Resolve(input, toolName string, category Category) (Resolved, error) {
	if strings.TrimSpace(input) == "" {
		input = r.defaultModel
	}
	name, option := ParseModel(input)

	if strings.EqualFold(name, "auto") {
		picked, err := r.resolveAuto(toolName, category)
		if err != nil {
			return Resolved{}, err
		}
		name = picked
	}

	if err := r.Validate(name, toolName); err != nil {
		return Resolved{}, err
	}

	p, _ := r.registry.ProviderForModel(name)
	caps, _ := p.Capabilities(name)
	return Resolved{Name: name, Option: option, Provider: p, Capabilities: caps}, nil
}

// resolveAuto returns the category fallback, cached per (tool, category).
func (r *Resolver) resolveAuto(toolName string, category Category) (string, error) {
	key := toolName + "|" + category.String()
	if model, ok := r.autoCache.Get(key); ok {
		return model, nil
	}
	model, err := r.registry.PreferredFallback(category)
	if err != nil {
		return "", err
	}
	r.autoCache.Put(key, model)
	return model, nil
}

// Validate checks model availability for a tool. Both positive and negative
// verdicts are cached with TTL; a cache hit returns immediately.
func (r *Resolver) Validate(model, toolName string) error {
	key := strings.ToLower(model) + "|" + toolName
	if verdict, ok := r.verdictCache.Get(key); ok {
		return verdict
	}

	var verdict error
	if _, ok := r.registry.ProviderForModel(model); !ok {
		verdict = &ModelUnavailableError{
			Model:     model,
			Tool:      toolName,
			Available: r.registry.AllModels(),
		}
	}
	r.verdictCache.Put(key, verdict)
	return verdict
}
