package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/orchestra-mcp/orchestra/internal/cache"
	"github.com/orchestra-mcp/orchestra/internal/catalogue"
)

// modeAliases maps alternate mode spellings to tool names.
var modeAliases = map[string]string{
	"security": "secaudit",
	"docs":     "docgen",
}

func toolForMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if alias, ok := modeAliases[mode]; ok {
		return alias
	}
	return mode
}

// Dispatch forwards a validated request to the concrete tool.
type Dispatch func(ctx context.Context, tool string, args map[string]any) (string, error)

// Optimizer is the select_mode/execute_mode pair plus the legacy stubs.
type Optimizer struct {
	catalogue *catalogue.Registry
	dispatch  Dispatch
	compiled  *cache.Cache[*jsonschema.Schema]
}

// New wires the optimizer to the tool catalogue and the handler's dispatch.
func New(reg *catalogue.Registry, dispatch Dispatch) *Optimizer {
	return &Optimizer{
		catalogue: reg,
		dispatch:  dispatch,
		compiled:  cache.New[*jsonschema.Schema](64, 0),
	}
}

// ValidationError reports a request that does not satisfy the selected
// mode's schema. The client should repair the request, not retry verbatim.
type ValidationError struct {
	Mode   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request does not match the %s schema: %s", e.Mode, e.Detail)
}

// ExecuteMode validates the request against the tool's schema and forwards
// it. Unknown modes and schema violations fail without touching the tool.
func (o *Optimizer) ExecuteMode(ctx context.Context, mode, complexity string, request map[string]any) (string, error) {
	tool := toolForMode(mode)
	desc, ok := o.catalogue.Get(tool)
	if !ok {
		return "", fmt.Errorf("unknown mode %q; call select_mode first", mode)
	}

	if err := o.validate(desc, request); err != nil {
		return "", err
	}

	// A simple-complexity request to a workflow tool still runs the full
	// workflow: complexity shapes the advertised schema, not the execution.
	_ = complexity
	return o.dispatch(ctx, desc.Name, request)
}

func (o *Optimizer) validate(desc *catalogue.Descriptor, request map[string]any) error {
	schema, err := o.compiledSchema(desc)
	if err != nil {
		return err
	}

	// Round-trip so integers and typed slices become the generic JSON shape
	// the validator expects.
	data, err := json.Marshal(request)
	if err != nil {
		return &ValidationError{Mode: desc.Name, Detail: err.Error()}
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return &ValidationError{Mode: desc.Name, Detail: err.Error()}
	}
	if err := schema.Validate(generic); err != nil {
		return &ValidationError{Mode: desc.Name, Detail: err.Error()}
	}
	return nil
}

func (o *Optimizer) compiledSchema(desc *catalogue.Descriptor) (*jsonschema.Schema, error) {
	key := fmt.Sprintf("%s|v%d", desc.Name, desc.Version)
	if s, ok := o.compiled.Get(key); ok {
		return s, nil
	}
	schema, err := jsonschema.CompileString(desc.Name+".json", string(o.catalogue.Schema(desc)))
	if err != nil {
		return nil, fmt.Errorf("optimizer: compiling %s schema: %w", desc.Name, err)
	}
	o.compiled.Put(key, schema)
	return schema, nil
}
