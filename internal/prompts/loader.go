// Package prompts holds the system-prompt catalogue. Defaults are embedded
// in the binary; an operator can override any prompt by dropping a file of
// the same name into the directory named by SYSTEM_PROMPTS_DIR.
package prompts

import (
	"embed"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed catalog/*.md
var defaultPrompts embed.FS

// injectionPatterns are lowercased substrings that indicate prompt injection
// attempts. Lines matching any pattern are dropped from override files with
// a warning; embedded defaults are trusted as shipped.
var injectionPatterns = []string{
	"ignore previous",
	"ignore above",
	"ignore all previous",
	"disregard all",
	"disregard previous",
	"forget previous",
	"forget all previous",
	"override instructions",
	"override previous",
	"new instructions:",
	"from now on",
}

// Loader resolves prompt ids to system prompt text. Safe for concurrent
// use; file contents are cached after the first read.
type Loader struct {
	overrideDir string
	mu          sync.RWMutex
	cache       map[string]string
}

// NewLoader creates a Loader with the given override directory (may be "").
func NewLoader(overrideDir string) *Loader {
	return &Loader{
		overrideDir: overrideDir,
		cache:       make(map[string]string),
	}
}

// NewLoaderFromEnv reads SYSTEM_PROMPTS_DIR.
func NewLoaderFromEnv() *Loader {
	return NewLoader(os.Getenv("SYSTEM_PROMPTS_DIR"))
}

// Get returns the system prompt for id ("debug", "chat", ...). Unknown ids
// return "": a tool with no prompt file still works, it just sends no
// system prompt.
func (l *Loader) Get(id string) string {
	l.mu.RLock()
	if text, ok := l.cache[id]; ok {
		l.mu.RUnlock()
		return text
	}
	l.mu.RUnlock()

	text := l.load(id)
	l.mu.Lock()
	l.cache[id] = text
	l.mu.Unlock()
	return text
}

func (l *Loader) load(id string) string {
	name := id + ".md"
	if l.overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(l.overrideDir, name)); err == nil {
			log.Printf("[Prompts] Using override for %s", id)
			return strings.TrimSpace(filterInjection(id, string(data)))
		}
	}
	data, err := defaultPrompts.ReadFile("catalog/" + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// filterInjection drops lines of an override prompt that look like
// injection attempts.
func filterInjection(id, text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		dropped := false
		for _, pat := range injectionPatterns {
			if strings.Contains(lower, pat) {
				log.Printf("[Prompts] WARNING: dropped suspicious line from %s override: %q", id, line)
				dropped = true
				break
			}
		}
		if !dropped {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Reload drops the cache so overrides are re-read on next access.
func (l *Loader) Reload() {
	l.mu.Lock()
	l.cache = make(map[string]string)
	l.mu.Unlock()
}
