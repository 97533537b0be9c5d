// Package tokens implements token estimation and context-window allocation.
//
// Estimation prefers exact counters: a provider-supplied tokeniser first,
// then tiktoken for OpenAI-family models, then the ⌊len/4⌋ ratio heuristic.
// Estimates are cached process-wide; the cache key is a truncated sha256 of
// (length, model, text) so long prompts never become map keys.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/orchestra-mcp/orchestra/internal/cache"
	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// Counter is the optional provider tokeniser hook.
type Counter interface {
	CountTokens(text, model string) (int, bool)
}

// Estimator estimates token counts with caching. Safe for concurrent use.
type Estimator struct {
	cache *cache.Cache[int]

	encMu    sync.Mutex
	encoders map[string]*tiktoken.Tiktoken // encoding name → encoder, nil = init failed
}

const (
	estimateCacheSize = 4096
	estimateCacheTTL  = 30 * time.Minute
)

// NewEstimator creates an Estimator with its own estimate cache.
func NewEstimator() *Estimator {
	return &Estimator{
		cache:    cache.New[int](estimateCacheSize, estimateCacheTTL),
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// Cache exposes the estimate cache for stats/cleanup.
func (e *Estimator) Cache() *cache.Cache[int] { return e.cache }

// cacheKey builds the truncated digest key: hex(sha256(len||model||text))[:16]
// plus the model, so identical text under different models never collides.
func cacheKey(text, model string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|", len(text), model)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16] + "|" + model
}

// EstimateText estimates the token count of text for model. counter may be
// nil; when present and successful it takes precedence over tiktoken.
func (e *Estimator) EstimateText(text, model string, counter Counter) int {
	if text == "" {
		return 0
	}
	key := cacheKey(text, model)
	if n, ok := e.cache.Get(key); ok {
		return n
	}

	n := e.estimateUncached(text, model, counter)
	e.cache.Put(key, n)
	return n
}

func (e *Estimator) estimateUncached(text, model string, counter Counter) int {
	if counter != nil {
		if n, ok := counter.CountTokens(text, model); ok {
			return n
		}
	}

	switch provider.TokenizerForModel(model) {
	case provider.TokenizerO200K:
		if n, ok := e.encode("o200k_base", text); ok {
			return n
		}
	case provider.TokenizerCL100K:
		if n, ok := e.encode("cl100k_base", text); ok {
			return n
		}
	}
	return RatioEstimate(text)
}

// RatioEstimate is the ⌊len/4⌋ heuristic used when no exact tokeniser
// applies. Byte length keeps the estimate monotone under concatenation.
func RatioEstimate(text string) int {
	return len(text) / 4
}

// encode runs tiktoken with the named encoding, caching the encoder.
// A failed encoder init (e.g. missing BPE data in an offline environment)
// is remembered so the fallback path is taken without repeated attempts.
func (e *Estimator) encode(encoding, text string) (int, bool) {
	e.encMu.Lock()
	enc, seen := e.encoders[encoding]
	if !seen {
		var err error
		enc, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			log.Printf("[Tokens] tiktoken %s unavailable, using ratio estimate: %v", encoding, err)
			enc = nil
		}
		e.encoders[encoding] = enc
	}
	e.encMu.Unlock()

	if enc == nil {
		return 0, false
	}
	return len(enc.Encode(text, nil, nil)), true
}
