package handler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orchestra-mcp/orchestra/internal/activity"
	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/config"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/prompts"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
	"github.com/orchestra-mcp/orchestra/internal/tools"
)

type fakeProvider struct {
	name    string
	models  map[string]provider.ModelCapabilities
	calls   int
	lastReq provider.GenerateRequest
	respond func(req provider.GenerateRequest) (provider.GenerateResponse, error)
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) FriendlyName() string { return "Fake" }
func (f *fakeProvider) ListModels() []string {
	out := make([]string, 0, len(f.models))
	for m := range f.models {
		out = append(out, m)
	}
	return out
}
func (f *fakeProvider) Capabilities(model string) (provider.ModelCapabilities, bool) {
	caps, ok := f.models[model]
	return caps, ok
}
func (f *fakeProvider) CountTokens(string, string) (int, bool) { return 0, false }
func (f *fakeProvider) GenerateContent(_ context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	f.calls++
	f.lastReq = req
	if f.respond != nil {
		return f.respond(req)
	}
	return provider.GenerateResponse{Content: "answer from " + req.Model, Model: req.Model}, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeProvider, *conversation.Store) {
	t.Helper()
	fp := &fakeProvider{
		name: "fake",
		models: map[string]provider.ModelCapabilities{
			"gemini-2.5-flash": {ModelName: "gemini-2.5-flash", ContextWindow: 1_000_000, SupportsImages: true},
			"gemini-2.5-pro":   {ModelName: "gemini-2.5-pro", ContextWindow: 1_000_000, SupportsImages: true},
			"o3":               {ModelName: "o3", ContextWindow: 200_000},
		},
	}
	providers := provider.NewRegistry(fp)
	resolver := provider.NewResolver(providers, "auto")
	store := conversation.NewStore()
	t.Cleanup(store.Close)

	reg := catalogue.NewRegistry(nil)
	tools.Register(reg)

	h := New(Config{
		Version:   config.Version,
		Catalogue: reg,
		Providers: providers,
		Resolver:  resolver,
		Store:     store,
		Estimator: tokens.NewEstimator(),
		Files:     fileio.NewValidator(""),
		Prompts:   prompts.NewLoader(""),
		Activity:  (*activity.Logger)(nil),
	})
	t.Cleanup(h.Close)
	return h, fp, store
}

func decode(t *testing.T, env string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(env), &out); err != nil {
		t.Fatalf("envelope is not JSON: %v\n%s", err, env)
	}
	return out
}

func TestChat_OneShot(t *testing.T) {
	h, fp, store := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "Explain REST vs GraphQL.", "model": "auto"}))

	if env["status"] != "success" {
		t.Fatalf("status = %v, envelope = %v", env["status"], env)
	}
	if env["content"] == "" {
		t.Error("content must be non-empty")
	}
	id, _ := env["continuation_id"].(string)
	if id == "" {
		t.Fatal("continuation_id missing")
	}
	if fp.lastReq.Model != "gemini-2.5-flash" {
		t.Errorf("auto for chat resolved to %q", fp.lastReq.Model)
	}

	thread := store.Get(id)
	if thread == nil || len(thread.Turns) != 2 {
		t.Fatalf("thread turns = %+v", thread)
	}
	if thread.Turns[1].Role != "assistant" || thread.Turns[1].ModelName != "gemini-2.5-flash" {
		t.Errorf("assistant turn = %+v", thread.Turns[1])
	}

	offer := env["continuation_offer"].(map[string]any)
	if offer["remaining_turns"].(float64) != float64(conversation.MaxTurns-2) {
		t.Errorf("continuation_offer = %v", offer)
	}
}

func TestChat_ContinuationInheritsModel(t *testing.T) {
	h, fp, _ := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "first", "model": "o3"}))
	id := env["continuation_id"].(string)

	env = decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "And follow-up?", "continuation_id": id}))
	if env["status"] != "success" {
		t.Fatalf("continuation failed: %v", env)
	}
	if fp.lastReq.Model != "o3" {
		t.Errorf("inherited model = %q, want o3", fp.lastReq.Model)
	}
	if !strings.Contains(fp.lastReq.Prompt, "CONVERSATION HISTORY") {
		t.Error("continuation prompt must fold in prior history")
	}
}

func TestUnknownToolAndContinuation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "nonsense", map[string]any{}))
	if env["status"] != "error" {
		t.Fatalf("status = %v", env["status"])
	}
	if env["metadata"].(map[string]any)["error_kind"] != "unknown_tool" {
		t.Errorf("metadata = %v", env["metadata"])
	}

	env = decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "hi", "continuation_id": "gone"}))
	md := env["metadata"].(map[string]any)
	if md["error_kind"] != "unknown_continuation" {
		t.Errorf("metadata = %v", md)
	}
	if !strings.Contains(env["content"].(string), "restart") {
		t.Errorf("content should instruct a restart: %v", env["content"])
	}
}

func TestModelUnavailable(t *testing.T) {
	h, _, _ := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "hi", "model": "claude-nonexistent"}))
	md := env["metadata"].(map[string]any)
	if md["error_kind"] != "model_unavailable" {
		t.Fatalf("metadata = %v", md)
	}
	if _, ok := md["available_models"]; !ok {
		t.Error("error must list the configured models")
	}
}

func TestCodeTooLargeRejection(t *testing.T) {
	h, fp, store := newTestHandler(t)

	dir := t.TempDir()
	big := filepath.Join(dir, "big.go")
	// 1M-window model: limit = 0.8 * 0.4 * 0.75 * 1_000_000 = 240_000 tokens,
	// roughly 960 KB of text at 4 bytes per token.
	if err := os.WriteFile(big, []byte(strings.Repeat("x", 1_000_000)), 0o644); err != nil {
		t.Fatal(err)
	}

	env := decode(t, h.HandleToolCall(context.Background(), "analyze", map[string]any{
		"step": "assess", "step_number": 1, "total_steps": 1, "next_step_required": false,
		"findings": "initial", "relevant_files": []any{big}, "model": "gemini-2.5-pro",
	}))

	if env["status"] != "error" {
		t.Fatalf("status = %v", env["status"])
	}
	md := env["metadata"].(map[string]any)
	if md["error_kind"] != "code_too_large" {
		t.Fatalf("metadata = %v", md)
	}
	for _, key := range []string{"total_estimated_tokens", "limit", "model_name", "model_context_window"} {
		if _, ok := md[key]; !ok {
			t.Errorf("metadata missing %q", key)
		}
	}
	if fp.calls != 0 {
		t.Error("rejected request must not reach the provider")
	}
	if store.Count() != 0 {
		t.Error("rejected request must not create a thread")
	}
}

func TestWorkflowDispatch(t *testing.T) {
	h, fp, _ := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "debug", map[string]any{
		"step": "reproduce the crash", "step_number": 1, "total_steps": 2,
		"next_step_required": true, "findings": "segfault in handler", "model": "gemini-2.5-pro",
	}))
	if env["status"] != "pause_for_debug" {
		t.Fatalf("status = %v", env["status"])
	}
	if fp.calls != 0 {
		t.Error("intermediate workflow step must not call the provider")
	}
}

func TestLegacyStubFallback(t *testing.T) {
	h, _, _ := newTestHandler(t)

	// A loose prompt-only call to a workflow tool goes through the stub.
	env := decode(t, h.HandleToolCall(context.Background(), "debug",
		map[string]any{"prompt": "investigate why startup hangs", "model": "gemini-2.5-pro"}))
	if env["status"] != "pause_for_debug" {
		t.Fatalf("stub call: status = %v, envelope = %v", env["status"], env)
	}
	if env["continuation_id"] == "" {
		t.Error("stub call must still open a thread")
	}
}

func TestSelectAndExecuteMode(t *testing.T) {
	h, _, _ := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "select_mode",
		map[string]any{"task_description": "debug this crash and stack trace"}))
	if env["status"] != "success" {
		t.Fatalf("select_mode: %v", env)
	}
	sel := env["content"].(map[string]any)
	if sel["selected_mode"] != "debug" || sel["complexity"] != "workflow" {
		t.Errorf("selection = %v", sel)
	}

	env = decode(t, h.HandleToolCall(context.Background(), "execute_mode", map[string]any{
		"mode": "debug", "complexity": "workflow",
		"request": map[string]any{
			"step": "look at the stack", "step_number": 1, "total_steps": 2,
			"next_step_required": true, "findings": "starting",
		},
	}))
	if env["status"] != "pause_for_debug" {
		t.Errorf("execute_mode: %v", env)
	}

	env = decode(t, h.HandleToolCall(context.Background(), "execute_mode", map[string]any{
		"mode": "chat", "complexity": "simple",
		"request": map[string]any{"temperature": 2.5},
	}))
	if env["metadata"].(map[string]any)["error_kind"] != "invalid_request" {
		t.Errorf("schema violation: %v", env)
	}
}

func TestConsensusFlow(t *testing.T) {
	h, fp, store := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "consensus", map[string]any{
		"step": "Should we adopt GraphQL?", "step_number": 1, "total_steps": 3,
		"next_step_required": true, "findings": "REST is straining under aggregation needs",
		"models": []any{
			map[string]any{"model": "o3", "stance": "for"},
			map[string]any{"model": "gemini-2.5-pro", "stance": "against"},
		},
	}))
	if env["status"] != "pause_for_consensus" {
		t.Fatalf("step 1: %v", env)
	}
	if env["model_consulted"] != "o3" {
		t.Errorf("model_consulted = %v", env["model_consulted"])
	}
	id := env["continuation_id"].(string)

	env = decode(t, h.HandleToolCall(context.Background(), "consensus", map[string]any{
		"step": "Should we adopt GraphQL?", "step_number": 2, "total_steps": 3,
		"next_step_required": true, "findings": "first consultation recorded",
		"continuation_id": id,
	}))
	if env["model_consulted"] != "gemini-2.5-pro" {
		t.Errorf("step 2 consulted %v", env["model_consulted"])
	}

	env = decode(t, h.HandleToolCall(context.Background(), "consensus", map[string]any{
		"step": "Should we adopt GraphQL?", "step_number": 3, "total_steps": 3,
		"next_step_required": false, "findings": "both consultations recorded",
		"continuation_id": id,
	}))
	if env["status"] != "consensus_complete" {
		t.Fatalf("final step: %v", env)
	}
	block := env["complete_consensus"].(map[string]any)
	if block["synthesis"] == "" {
		t.Error("synthesis missing")
	}
	if fp.calls != 3 {
		t.Errorf("provider calls = %d, want 2 consultations + 1 synthesis", fp.calls)
	}

	thread := store.Get(id)
	if thread == nil || len(thread.Turns) != 6 {
		t.Errorf("turns = %d, want 3 user + 3 assistant", len(thread.Turns))
	}

	// Step 1 without models is rejected.
	env = decode(t, h.HandleToolCall(context.Background(), "consensus", map[string]any{
		"step": "x", "step_number": 1, "total_steps": 1,
		"next_step_required": true, "findings": "y",
	}))
	if env["metadata"].(map[string]any)["error_kind"] != "invalid_request" {
		t.Errorf("missing models: %v", env)
	}
}

func TestLocalTools(t *testing.T) {
	h, _, _ := newTestHandler(t)

	env := decode(t, h.HandleToolCall(context.Background(), "listmodels", map[string]any{}))
	if env["status"] != "success" || !strings.Contains(env["content"].(string), "gemini-2.5-pro") {
		t.Errorf("listmodels: %v", env)
	}

	env = decode(t, h.HandleToolCall(context.Background(), "version", map[string]any{}))
	if !strings.Contains(env["content"].(string), config.Version) {
		t.Errorf("version: %v", env["content"])
	}

	env = decode(t, h.HandleToolCall(context.Background(), "challenge",
		map[string]any{"prompt": "goroutines are free"}))
	if !strings.Contains(env["content"].(string), "CRITICAL REASSESSMENT") {
		t.Errorf("challenge: %v", env["content"])
	}
}

func TestChat_ClarificationPromoted(t *testing.T) {
	h, fp, _ := newTestHandler(t)
	fp.respond = func(provider.GenerateRequest) (provider.GenerateResponse, error) {
		return provider.GenerateResponse{
			Content: `{"status": "files_required_to_continue", "files_needed": ["main.go"]}`,
			Model:   "gemini-2.5-flash",
		}, nil
	}

	env := decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "Review my server setup."}))
	if env["status"] != "files_required_to_continue" {
		t.Errorf("status = %v, want files_required_to_continue", env["status"])
	}
	// The thread stays usable: the client adds files and continues.
	if env["continuation_id"] == nil {
		t.Error("clarification must still carry a continuation_id")
	}
}

func TestTurnLimit_RejectsContinuation(t *testing.T) {
	h, fp, store := newTestHandler(t)

	id := store.Create("chat", nil, "")
	for i := 0; i < conversation.MaxTurns; i++ {
		if !store.AddTurn(id, conversation.Turn{Role: "user", Content: "filler"}) {
			t.Fatalf("could not fill thread at turn %d", i)
		}
	}

	env := decode(t, h.HandleToolCall(context.Background(), "chat",
		map[string]any{"prompt": "one more question", "continuation_id": id}))
	if env["status"] != "error" {
		t.Fatalf("status = %v, want error", env["status"])
	}
	if env["metadata"].(map[string]any)["error_kind"] != "conversation_full" {
		t.Errorf("error_kind: %v", env["metadata"])
	}
	if fp.calls != 0 {
		t.Errorf("provider called %d times against a full thread", fp.calls)
	}
	if snap := store.Get(id); len(snap.Turns) != conversation.MaxTurns {
		t.Errorf("turns = %d, full thread was mutated", len(snap.Turns))
	}

	// Consensus continuations hit the same wall before consulting anyone.
	cid := store.Create("consensus", map[string]any{
		"models": []any{map[string]any{"model": "o3"}},
	}, "")
	for i := 0; i < conversation.MaxTurns; i++ {
		store.AddTurn(cid, conversation.Turn{Role: "user", Content: "filler"})
	}
	env = decode(t, h.HandleToolCall(context.Background(), "consensus", map[string]any{
		"step": "keep going", "step_number": 2, "total_steps": 2,
		"next_step_required": true, "findings": "still evaluating",
		"continuation_id": cid,
	}))
	if env["metadata"].(map[string]any)["error_kind"] != "conversation_full" {
		t.Errorf("consensus continuation: %v", env)
	}
	if fp.calls != 0 {
		t.Errorf("provider consulted on a full consensus thread")
	}
}
