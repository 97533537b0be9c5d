// Package config loads server configuration from the environment.
//
// A .env file is probed next to the executable (walking up a few levels)
// and in the working directory; system environment variables always win.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file.
//
// Search order (stops at the first file found):
//  1. Explicit paths passed as arguments (test use).
//  2. Directory of the running executable, walking up to 3 levels.
//  3. Current working directory (fallback for `go run ./cmd/orchestra`).
//
// If no .env is found anywhere, the process continues with system env vars.
func LoadEnv(paths ...string) {
	if len(paths) > 0 {
		if err := godotenv.Load(paths...); err != nil {
			log.Printf("[Config] No .env file at specified path(s), using system environment variables")
		}
		return
	}

	for _, p := range resolveEnvCandidates() {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				log.Printf("[Config] Failed to load .env from %s: %v", p, err)
			} else {
				log.Printf("[Config] Loaded .env from %s", p)
			}
			return
		}
	}
	log.Printf("[Config] No .env file found, using system environment variables")
}

// resolveEnvCandidates returns the ordered list of .env paths to probe.
func resolveEnvCandidates() []string {
	var candidates []string
	seen := map[string]bool{}

	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			candidates = append(candidates, p)
		}
	}

	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		dir := filepath.Dir(exe)
		for i := 0; i <= 3; i++ {
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		add(filepath.Join(cwd, ".env"))
	}
	return candidates
}

// Version is the server version reported by the version tool.
const Version = "1.3.0"

// DefaultModel returns the DEFAULT_MODEL setting, "auto" when unset.
func DefaultModel() string {
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		return v
	}
	return "auto"
}

// placeholderValues are key values treated as unset. Users copy .env.example
// files around; a literal placeholder must not enable a provider.
var placeholderValues = []string{
	"your_api_key_here",
	"your-api-key-here",
	"placeholder",
}

// APIKey returns the value of the given key env var, or "" when the value is
// missing or a recognised placeholder.
func APIKey(envVar string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	for _, p := range placeholderValues {
		if lower == p {
			return ""
		}
	}
	if strings.HasPrefix(lower, "your_") {
		return ""
	}
	return v
}

// CustomAPIURL returns the custom OpenAI-compatible endpoint URL, if any.
// An empty CUSTOM_API_KEY is permitted for unauthenticated local endpoints.
func CustomAPIURL() string {
	return strings.TrimSpace(os.Getenv("CUSTOM_API_URL"))
}

// CustomAPIKey returns CUSTOM_API_KEY verbatim (empty allowed).
func CustomAPIKey() string {
	return os.Getenv("CUSTOM_API_KEY")
}

// CustomModelName returns the default model for the custom endpoint.
func CustomModelName() string {
	if v := os.Getenv("CUSTOM_MODEL_NAME"); v != "" {
		return v
	}
	return "llama3.2"
}

// essentialTools can never be disabled; they are the operator's window into
// the server's own state.
var essentialTools = map[string]bool{
	"version":    true,
	"listmodels": true,
}

// DisabledTools parses DISABLED_TOOLS into a set of tool names to hide.
// Essential tools are silently removed from the set.
func DisabledTools() map[string]bool {
	raw := os.Getenv("DISABLED_TOOLS")
	disabled := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if essentialTools[name] {
			log.Printf("[Config] Ignoring DISABLED_TOOLS entry %q: essential tools cannot be disabled", name)
			continue
		}
		disabled[name] = true
	}
	return disabled
}

// AllowedModels parses <PROVIDER>_ALLOWED_MODELS (e.g. OPENAI_ALLOWED_MODELS)
// into a lowercase set. Nil means no restriction.
func AllowedModels(providerEnvPrefix string) map[string]bool {
	raw := os.Getenv(providerEnvPrefix + "_ALLOWED_MODELS")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	allowed := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name != "" {
			allowed[name] = true
		}
	}
	return allowed
}

// DebugEnabled reports whether LOG_LEVEL requests debug-level logging.
func DebugEnabled() bool {
	return strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug")
}

// MCPTransport returns "stdio" (default) or "http".
func MCPTransport() string {
	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		return strings.ToLower(v)
	}
	return "stdio"
}

// MCPHost returns the HTTP transport bind address.
func MCPHost() string {
	if v := os.Getenv("MCP_HOST"); v != "" {
		return v
	}
	return "127.0.0.1"
}

// MCPPort returns the HTTP transport port.
func MCPPort() int {
	if v := os.Getenv("MCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < 65536 {
			return n
		}
		log.Printf("[Config] Invalid MCP_PORT=%q, using default 8000", v)
	}
	return 8000
}

// MCPAuthToken returns the bearer token required by the HTTP transport.
func MCPAuthToken() string {
	return os.Getenv("MCP_AUTH_TOKEN")
}

// MCPRequireAuth reports whether the HTTP transport must reject requests
// without a valid bearer token.
func MCPRequireAuth() bool {
	v := strings.ToLower(os.Getenv("MCP_REQUIRE_AUTH"))
	return v == "1" || v == "true" || v == "yes"
}

// CustomModelsPath returns the path of the optional YAML capability manifest
// for custom/OpenRouter models.
func CustomModelsPath() string {
	if v := os.Getenv("CUSTOM_MODELS_CONFIG_PATH"); v != "" {
		return v
	}
	return filepath.Join("conf", "custom_models.yaml")
}

// ActivityLogPath returns the markdown activity log path; empty disables
// activity logging.
func ActivityLogPath() string {
	return strings.TrimSpace(os.Getenv("ACTIVITY_LOG"))
}
