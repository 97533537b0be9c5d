package provider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifestFile mirrors conf/custom_models.yaml. It lets operators declare
// capabilities for models the built-in tables do not know, typically
// OpenRouter ids and local models behind a custom endpoint.
//
//	models:
//	  - model_name: llama3.2
//	    friendly_name: Ollama
//	    context_window: 128000
//	    max_output_tokens: 32768
//	    supports_images: false
type manifestFile struct {
	Models []manifestModel `yaml:"models"`
}

type manifestModel struct {
	ModelName                string   `yaml:"model_name"`
	Aliases                  []string `yaml:"aliases"`
	FriendlyName             string   `yaml:"friendly_name"`
	ContextWindow            int      `yaml:"context_window"`
	MaxOutputTokens          int      `yaml:"max_output_tokens"`
	SupportsImages           bool     `yaml:"supports_images"`
	SupportsExtendedThinking bool     `yaml:"supports_extended_thinking"`
	SupportsFunctionCalling  bool     `yaml:"supports_function_calling"`
}

// LoadManifest parses the YAML capability manifest at path. A missing file
// is not an error: the manifest is optional and built-in defaults apply.
func LoadManifest(path string) (map[string]ModelCapabilities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("provider: read manifest %q: %w", path, err)
	}

	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("provider: parse manifest %q: %w", path, err)
	}

	out := make(map[string]ModelCapabilities, len(file.Models))
	for _, m := range file.Models {
		if m.ModelName == "" {
			continue
		}
		caps := ModelCapabilities{
			ModelName:                m.ModelName,
			FriendlyName:             m.FriendlyName,
			ContextWindow:            m.ContextWindow,
			MaxOutputTokens:          m.MaxOutputTokens,
			SupportsImages:           m.SupportsImages,
			SupportsExtendedThinking: m.SupportsExtendedThinking,
			SupportsFunctionCalling:  m.SupportsFunctionCalling,
			Tokenizer:                TokenizerForModel(m.ModelName),
		}
		if caps.ContextWindow <= 0 {
			caps.ContextWindow = 32_768
		}
		if caps.MaxOutputTokens <= 0 {
			caps.MaxOutputTokens = 8_192
		}
		out[strings.ToLower(m.ModelName)] = caps
		for _, alias := range m.Aliases {
			if alias != "" {
				out[strings.ToLower(alias)] = caps
			}
		}
	}
	return out, nil
}
