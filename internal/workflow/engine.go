package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/prompts"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
)

// StepRequest is the decoded argument set common to all workflow tools.
type StepRequest struct {
	Step              string   `json:"step"`
	StepNumber        int      `json:"step_number"`
	TotalSteps        int      `json:"total_steps"`
	NextStepRequired  bool     `json:"next_step_required"`
	Findings          string   `json:"findings"`
	FilesChecked      []string `json:"files_checked"`
	RelevantFiles     []string `json:"relevant_files"`
	RelevantContext   []string `json:"relevant_context"`
	IssuesFound       []Issue  `json:"issues_found"`
	Images            []string `json:"images"`
	Hypothesis        string   `json:"hypothesis"`
	Confidence        string   `json:"confidence"`
	BacktrackFromStep int      `json:"backtrack_from_step"`
	ContinuationID    string   `json:"continuation_id"`
	Model             string   `json:"model"`
	Temperature       *float32 `json:"temperature"`
	ThinkingMode      string   `json:"thinking_mode"`
	UseWebsearch      *bool    `json:"use_websearch"`
}

// DecodeStep converts raw tool arguments into a StepRequest.
func DecodeStep(args map[string]any) (*StepRequest, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("workflow: invalid arguments: %w", err)
	}
	var req StepRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("workflow: invalid arguments: %w", err)
	}
	return &req, nil
}

// InvalidStepError reports a step request that fails the input contract.
// The thread is never mutated when this is returned.
type InvalidStepError struct {
	Field  string
	Reason string
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("invalid step request: field %q %s", e.Field, e.Reason)
}

// UnknownThreadError reports a continuation id with no live thread behind it.
type UnknownThreadError struct {
	ID string
}

func (e *UnknownThreadError) Error() string {
	return fmt.Sprintf(
		"conversation thread %q was not found or has expired; restart the workflow at step 1 without a continuation_id",
		e.ID,
	)
}

// workState is the per-thread work history. Ephemeral, process-local; a
// backtrack rebuilds the consolidated view from what survives here.
type workState struct {
	history []StepRecord
	touched time.Time
}

// Engine drives workflow tools. One instance serves all tools; per-thread
// work histories are kept alongside the conversation store and pruned on
// the same TTL.
type Engine struct {
	store     *conversation.Store
	prompts   *prompts.Loader
	estimator *tokens.Estimator
	files     *fileio.Validator

	mu     sync.Mutex
	states map[string]*workState

	now func() time.Time // test hook
}

// NewEngine wires an Engine to its collaborators.
func NewEngine(store *conversation.Store, loader *prompts.Loader, est *tokens.Estimator, files *fileio.Validator) *Engine {
	return &Engine{
		store:     store,
		prompts:   loader,
		estimator: est,
		files:     files,
		states:    make(map[string]*workState),
		now:       time.Now,
	}
}

// ExecuteStep processes one workflow step and returns the result envelope.
// Input-contract violations and unknown continuations return an error with
// no thread mutation; provider failures during the expert call surface as a
// status=error envelope instead, because the user turn is already recorded.
func (e *Engine) ExecuteStep(ctx context.Context, desc *catalogue.Descriptor, args map[string]any, rm *provider.Resolved) (map[string]any, error) {
	req, err := DecodeStep(args)
	if err != nil {
		return nil, err
	}
	if err := validateStep(desc, req, args); err != nil {
		return nil, err
	}

	threadID := req.ContinuationID
	if threadID == "" {
		threadID = e.store.Create(desc.Name, args, "")
	} else if snap := e.store.Get(threadID); snap == nil {
		return nil, &UnknownThreadError{ID: threadID}
	} else {
		// A final step may add the expert's answer as a second turn;
		// reserve room for it up front.
		needed := 1
		if !req.NextStepRequired && desc.Expert.Enabled {
			needed = 2
		}
		if len(snap.Turns)+needed > conversation.MaxTurns {
			return nil, &conversation.ThreadFullError{ID: threadID}
		}
	}

	// The turn append is the commit point: only a recorded turn may become
	// a step in the work history, or a truncated thread would replay
	// phantom findings.
	turn := conversation.Turn{
		Role:     "user",
		Content:  fmt.Sprintf("Step %d: %s\n\nFindings: %s", req.StepNumber, req.Step, req.Findings),
		ToolName: desc.Name,
		Files:    req.RelevantFiles,
		Images:   req.Images,
	}
	if !e.store.AddTurn(threadID, turn) {
		return nil, &conversation.ThreadFullError{ID: threadID}
	}

	cf, steps := e.recordStep(threadID, req)

	env := map[string]any{
		"status":             "pause_for_" + desc.Name,
		"step_number":        req.StepNumber,
		"total_steps":        req.TotalSteps,
		"next_step_required": req.NextStepRequired,
		"continuation_id":    threadID,
		desc.Name + "_status": map[string]any{
			"files_checked":      len(cf.FilesChecked),
			"relevant_files":     len(cf.RelevantFiles),
			"relevant_context":   len(cf.RelevantContext),
			"issues_found":       len(cf.IssuesFound),
			"images_collected":   len(cf.Images),
			"current_confidence": cf.Confidence,
			"steps_taken":        steps,
		},
	}

	if req.NextStepRequired {
		env["required_actions"] = RequiredActions(desc.Name, req.StepNumber, req.Confidence, req.TotalSteps)
		return env, nil
	}

	return e.complete(ctx, desc, req, &cf, threadID, rm, env)
}

// recordStep applies backtracking, appends the step record, and returns the
// replayed consolidated findings with the surviving step count.
func (e *Engine) recordStep(threadID string, req *StepRequest) (ConsolidatedFindings, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked()

	st, ok := e.states[threadID]
	if !ok {
		st = &workState{}
		e.states[threadID] = st
	}
	st.touched = e.now()

	if req.BacktrackFromStep > 0 {
		st.history = Truncate(st.history, req.BacktrackFromStep)
	}
	st.history = append(st.history, StepRecord{
		StepNumber:      req.StepNumber,
		Step:            req.Step,
		Findings:        req.Findings,
		FilesChecked:    req.FilesChecked,
		RelevantFiles:   req.RelevantFiles,
		RelevantContext: req.RelevantContext,
		IssuesFound:     req.IssuesFound,
		Images:          req.Images,
		Hypothesis:      req.Hypothesis,
		Confidence:      req.Confidence,
	})
	return Replay(st.history), len(st.history)
}

// complete handles the terminal step: gate the expert call, run it or record
// why it was skipped, and assemble the completion block.
func (e *Engine) complete(ctx context.Context, desc *catalogue.Descriptor, req *StepRequest, cf *ConsolidatedFindings, threadID string, rm *provider.Resolved, env map[string]any) (map[string]any, error) {
	block := map[string]any{
		"consolidated_findings": cf,
		"work_summary":          cf.Summary(),
	}
	env["complete_"+desc.Name] = block

	switch {
	case !desc.Expert.Enabled:
		env["status"] = "local_work_complete"
		return env, nil

	case desc.Expert.HonourCertain && req.Confidence == "certain":
		env["status"] = "certain_confidence_proceed_with_fix"
		block["expert_analysis"] = map[string]any{"status": "skipped_due_to_certain_confidence"}
		return env, nil

	case !desc.Expert.ForceOn && !expertGate(cf):
		env["status"] = "local_work_complete"
		return env, nil
	}

	if rm == nil || rm.Provider == nil {
		env["status"] = "error"
		env["content"] = "expert analysis requested but no model was resolved for this call"
		return env, nil
	}

	analysis, raw, err := e.callExpert(ctx, desc, req, cf, threadID, rm)
	if err != nil {
		env["status"] = "error"
		env["content"] = fmt.Sprintf("expert analysis failed: %v", err)
		return env, nil
	}

	e.store.AddTurn(threadID, conversation.Turn{
		Role:          "assistant",
		Content:       raw,
		ToolName:      desc.Name,
		ModelName:     rm.Name,
		ModelProvider: rm.Provider.Name(),
	})

	block["expert_analysis"] = analysis
	env["status"] = desc.Name + "_complete"
	if s, ok := analysis["status"].(string); ok {
		if s == "files_required_to_continue" || s == "investigation_paused" {
			env["status"] = s
		}
	}
	return env, nil
}

// expertGate is the default completion predicate: there must be something
// worth a second opinion.
func expertGate(cf *ConsolidatedFindings) bool {
	return len(cf.RelevantFiles) > 0 || len(cf.Findings) >= 2 || len(cf.IssuesFound) > 0
}

func validateStep(desc *catalogue.Descriptor, req *StepRequest, args map[string]any) error {
	if strings.TrimSpace(req.Step) == "" {
		return &InvalidStepError{Field: "step", Reason: "must be a non-empty description of the work performed"}
	}
	if req.StepNumber < 1 {
		return &InvalidStepError{Field: "step_number", Reason: "must be >= 1"}
	}
	if strings.TrimSpace(req.Findings) == "" {
		return &InvalidStepError{Field: "findings", Reason: "must record what this step observed"}
	}
	// The caller is authoritative for numbering; a low estimate is lifted
	// rather than rejected.
	if req.TotalSteps < req.StepNumber {
		req.TotalSteps = req.StepNumber
	}
	if req.StepNumber == 1 {
		for _, field := range desc.Step1Required {
			if emptyArg(args[field]) {
				return &InvalidStepError{Field: field, Reason: "is required on step 1 for " + desc.Name}
			}
		}
	}
	return nil
}

func emptyArg(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

// statePruneTTL matches the conversation TTL so work histories do not
// outlive their threads.
const statePruneTTL = conversation.ThreadTTL

// pruneLocked drops work states whose thread would have expired. Caller
// holds e.mu.
func (e *Engine) pruneLocked() {
	cutoff := e.now().Add(-statePruneTTL)
	for id, st := range e.states {
		if st.touched.Before(cutoff) {
			delete(e.states, id)
		}
	}
}
