// Package handler is the top-level dispatch for tool calls: continuation
// reconstruction, model resolution, file pre-flight, and the simple-vs-
// workflow split. Every call returns one JSON envelope, success or failure.
package handler

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/orchestra/internal/activity"
	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/optimizer"
	"github.com/orchestra-mcp/orchestra/internal/prompts"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
	"github.com/orchestra-mcp/orchestra/internal/workflow"
)

// cleanupEvery is the activity-driven cache maintenance cadence; the
// time-driven cadence runs alongside it.
const (
	cleanupEvery    = 64
	cleanupInterval = 5 * time.Minute
)

// Handler owns the request pipeline. One instance serves all transports.
type Handler struct {
	version   string
	catalogue *catalogue.Registry
	providers *provider.Registry
	resolver  *provider.Resolver
	store     *conversation.Store
	engine    *workflow.Engine
	estimator *tokens.Estimator
	files     *fileio.Validator
	prompts   *prompts.Loader
	optimizer *optimizer.Optimizer
	activity  *activity.Logger

	requests  atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

// Config carries the collaborators a Handler needs.
type Config struct {
	Version   string
	Catalogue *catalogue.Registry
	Providers *provider.Registry
	Resolver  *provider.Resolver
	Store     *conversation.Store
	Estimator *tokens.Estimator
	Files     *fileio.Validator
	Prompts   *prompts.Loader
	Activity  *activity.Logger // nil disables activity logging
}

// New assembles the Handler, its workflow engine and its optimizer, and
// starts the background cache-maintenance loop. Call Close to stop it.
func New(cfg Config) *Handler {
	h := &Handler{
		version:   cfg.Version,
		catalogue: cfg.Catalogue,
		providers: cfg.Providers,
		resolver:  cfg.Resolver,
		store:     cfg.Store,
		estimator: cfg.Estimator,
		files:     cfg.Files,
		prompts:   cfg.Prompts,
		activity:  cfg.Activity,
		done:      make(chan struct{}),
	}
	h.engine = workflow.NewEngine(cfg.Store, cfg.Prompts, cfg.Estimator, cfg.Files)
	h.optimizer = optimizer.New(cfg.Catalogue, h.dispatch)
	go h.maintenanceLoop()
	return h
}

// Close stops the maintenance loop. Safe to call multiple times.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Optimizer exposes the meta-tool facade for transport registration.
func (h *Handler) Optimizer() *optimizer.Optimizer { return h.optimizer }

// HandleToolCall runs one tool call end to end and returns the serialised
// envelope. Transport errors aside, failures are envelopes too.
func (h *Handler) HandleToolCall(ctx context.Context, toolName string, args map[string]any) string {
	start := time.Now()
	out := h.route(ctx, toolName, args)
	h.activity.Call(toolName, stringArg(args, "model"), envelopeStatus(out), time.Since(start))
	h.afterRequest()
	return out
}

func (h *Handler) route(ctx context.Context, toolName string, args map[string]any) string {
	switch toolName {
	case "select_mode":
		sel := h.optimizer.SelectMode(
			stringArg(args, "task_description"),
			stringArg(args, "context_size"),
			stringArg(args, "confidence_level"),
		)
		return marshalEnvelope(map[string]any{
			"status":       "success",
			"content_type": "json",
			"content":      sel,
		})
	case "execute_mode":
		request, _ := args["request"].(map[string]any)
		out, err := h.optimizer.ExecuteMode(ctx, stringArg(args, "mode"), stringArg(args, "complexity"), request)
		if err != nil {
			return h.errorEnvelope(err, toolName)
		}
		return out
	}

	desc, ok := h.catalogue.Get(toolName)
	if !ok {
		return errorEnvelopeWith("unknown_tool",
			"Unknown tool: "+toolName+". Use listmodels or the tool list to see what is available.",
			map[string]any{"tool_name": toolName})
	}

	// Legacy loose calls to workflow tools go through the stub path, which
	// builds the minimal valid request and comes back here via dispatch.
	if desc.Shape == catalogue.ShapeWorkflow && !hasWorkflowShape(args) && stringArg(args, "prompt") != "" {
		out, err := h.optimizer.StubExecute(ctx, toolName, args)
		if err != nil {
			return h.errorEnvelope(err, toolName)
		}
		return out
	}

	out, err := h.dispatch(ctx, toolName, args)
	if err != nil {
		return h.errorEnvelope(err, toolName)
	}
	return out
}

// dispatch is the shared pipeline behind direct calls, stubs and
// execute_mode. Returns the envelope or a taxonomy error.
func (h *Handler) dispatch(ctx context.Context, toolName string, args map[string]any) (string, error) {
	desc, ok := h.catalogue.Get(toolName)
	if !ok {
		return "", &unknownToolError{name: toolName}
	}

	// Model inheritance happens before resolution: an explicit model always
	// wins, a continuation without one keeps talking to the same model.
	var thread *conversation.ThreadContext
	if id := stringArg(args, "continuation_id"); id != "" {
		thread = h.store.Get(id)
		if thread == nil {
			return "", &workflow.UnknownThreadError{ID: id}
		}
		if stringArg(args, "model") == "" {
			if inherited, _ := conversation.InheritedModel(thread); inherited != "" {
				args["model"] = inherited
			}
		}
	}

	var rm *provider.Resolved
	if desc.RequiresModel {
		resolved, err := h.resolver.Resolve(stringArg(args, "model"), desc.Name, desc.Category)
		if err != nil {
			return "", err
		}
		rm = &resolved
	}

	if err := h.preflight(desc, args, rm); err != nil {
		return "", err
	}

	if desc.Shape == catalogue.ShapeWorkflow {
		if desc.Name == "consensus" {
			return h.runConsensus(ctx, desc, args, rm)
		}
		env, err := h.engine.ExecuteStep(ctx, desc, args, rm)
		if err != nil {
			return "", err
		}
		return marshalEnvelope(env), nil
	}
	return h.runSimple(ctx, desc, args, rm, thread)
}

// preflight estimates every declared file and rejects the request outright
// when the estimate exceeds the model-sensitive budget fraction.
func (h *Handler) preflight(desc *catalogue.Descriptor, args map[string]any, rm *provider.Resolved) error {
	if rm == nil {
		return nil
	}
	paths := append(stringsArg(args, "files"), stringsArg(args, "relevant_files")...)
	if len(paths) == 0 {
		return nil
	}
	expanded := h.files.ExpandPaths(paths)

	estimates := make([]int, 0, len(expanded))
	for _, p := range expanded {
		n, err := h.estimator.EstimateFile(p, rm.Capabilities, rm.Provider)
		if err != nil {
			if errors.Is(err, tokens.ErrUnsupportedContentType) {
				return err
			}
			// Unreadable files fail later inside the framed reader output;
			// pre-flight only guards the budget.
			log.Printf("[Handler] %s: pre-flight estimate failed for %s: %v", desc.Name, p, err)
			continue
		}
		estimates = append(estimates, n)
	}
	return tokens.Preflight(rm.Name, rm.Capabilities.ContextWindow, estimates)
}

// afterRequest drives the activity-based cache maintenance cadence.
func (h *Handler) afterRequest() {
	if h.requests.Add(1)%cleanupEvery == 0 {
		go h.cleanupCaches()
	}
}

func (h *Handler) maintenanceLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupCaches()
		}
	}
}

func (h *Handler) cleanupCaches() {
	dropped := h.estimator.Cache().Cleanup() +
		h.catalogue.SchemaCache().Cleanup() +
		h.resolver.VerdictCache().Cleanup()
	if dropped > 0 {
		log.Printf("[Handler] Cache maintenance dropped %d expired entries", dropped)
	}
}

func hasWorkflowShape(args map[string]any) bool {
	_, hasStep := args["step"]
	_, hasFindings := args["findings"]
	return hasStep && hasFindings
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
