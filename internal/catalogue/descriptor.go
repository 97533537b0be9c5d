// Package catalogue is the declarative registry of tool descriptors: name,
// category, shape, schema and prompt binding for every tool the server
// advertises.
package catalogue

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/orchestra-mcp/orchestra/internal/cache"
	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// Shape distinguishes one-shot tools from client-driven workflow tools.
type Shape int

const (
	ShapeSimple Shape = iota
	ShapeWorkflow
)

func (s Shape) String() string {
	if s == ShapeWorkflow {
		return "workflow"
	}
	return "simple"
}

// ExpertPolicy controls the workflow engine's terminal expert call.
type ExpertPolicy struct {
	// Enabled opts the tool into expert analysis at all.
	Enabled bool
	// ForceOn skips the default findings-based gate: the expert is always
	// consulted on completion (analyze).
	ForceOn bool
	// HonourCertain lets confidence="certain" skip the expert call.
	HonourCertain bool
}

// Descriptor is an immutable tool description. Process lifetime; owned by
// the Registry.
type Descriptor struct {
	Name           string
	Description    string
	Category       provider.Category
	RequiresModel  bool
	Shape          Shape
	DefaultTemp    float32
	SystemPromptID string
	Expert         ExpertPolicy
	// Version invalidates cached schemas when a descriptor changes.
	Version int
	// ExtraFields extends the shared schema field set.
	ExtraFields []Field
	// RequiredFields names the request fields that must be present.
	RequiredFields []string
	// Step1Required names fields the workflow engine demands on step 1
	// (e.g. relevant_files for analyze).
	Step1Required []string
}

// Registry holds descriptors, applies the disabled-tool filter, and caches
// built schemas. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	disabled    map[string]bool
	schemas     *cache.Cache[json.RawMessage]
}

const schemaCacheTTL = time.Hour

// NewRegistry creates a Registry hiding the given tool names. Essential
// tools are protected upstream by config.DisabledTools.
func NewRegistry(disabled map[string]bool) *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		disabled:    disabled,
		schemas:     cache.New[json.RawMessage](128, schemaCacheTTL),
	}
}

// Register adds a descriptor. Duplicate names are overwritten with a
// warning, matching last-registration-wins.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.Name]; exists {
		log.Printf("[Catalogue] WARNING: overwriting existing tool %q", d.Name)
	}
	r.descriptors[d.Name] = d
}

// Get retrieves a visible descriptor by name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disabled[name] {
		return nil, false
	}
	d, ok := r.descriptors[name]
	return d, ok
}

// List returns all visible descriptors sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.descriptors))
	for name, d := range r.descriptors {
		if !r.disabled[name] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schema returns the tool's input schema, cached per (name, version).
func (r *Registry) Schema(d *Descriptor) json.RawMessage {
	key := fmt.Sprintf("%s|v%d", d.Name, d.Version)
	if s, ok := r.schemas.Get(key); ok {
		return s
	}
	s := BuildSchema(d)
	r.schemas.Put(key, s)
	return s
}

// SchemaCache exposes the schema cache for stats/cleanup.
func (r *Registry) SchemaCache() *cache.Cache[json.RawMessage] { return r.schemas }
