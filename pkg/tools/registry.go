package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
)

// Registry holds the tool set a strategy advertises. Immutable after
// construction; arguments are validated against each tool's schema before
// dispatch so malformed calls never reach tool code.
type Registry struct {
	tools      map[string]Tool
	order      []string
	validators map[string]*jsonschema.Schema
	metrics    *metrics.Metrics
}

// NewRegistry compiles each tool's schema into a validator.
func NewRegistry(m *metrics.Metrics, tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:      make(map[string]Tool, len(tools)),
		validators: make(map[string]*jsonschema.Schema, len(tools)),
		metrics:    m,
	}
	for _, tool := range tools {
		name := tool.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(tool.Schema()))
		if err != nil {
			return nil, fmt.Errorf("parse schema for tool %q: %w", name, err)
		}
		compiler := jsonschema.NewCompiler()
		resource := name + ".schema.json"
		if err := compiler.AddResource(resource, doc); err != nil {
			return nil, fmt.Errorf("register schema for tool %q: %w", name, err)
		}
		validator, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile schema for tool %q: %w", name, err)
		}

		r.tools[name] = tool
		r.validators[name] = validator
		r.order = append(r.order, name)
	}
	return r, nil
}

// Definitions advertises the tool set to the LLM, in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// DefinitionsFor advertises a subset of the tool set, in the given
// order. Unknown names are skipped.
func (r *Registry) DefinitionsFor(names ...string) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Dispatch validates and executes one tool call, emitting the adjacent
// tool_call / tool_result event pair. Tool-level failures come back as a
// Result the caller feeds to the LLM; the returned error is non-nil only
// for failures that must abort the run (sandbox unavailable, cancelled).
func (r *Registry) Dispatch(ctx context.Context, env *ExecEnv, call models.ToolCall) (*Result, error) {
	env.Publisher.ToolCall(call.Name, rawArguments(call), call.ID, env.Iteration)

	result, err := r.execute(ctx, env, call)
	if err != nil {
		return nil, err
	}

	env.Publisher.ToolResult(call.Name, call.ID, result.Status,
		result.StdoutPreview, result.HasImage, env.Iteration)
	return result, nil
}

func (r *Registry) execute(ctx context.Context, env *ExecEnv, call models.ToolCall) (*Result, error) {
	tool, ok := r.tools[call.Name]
	if !ok {
		r.record(call.Name, StatusInvalid, 0)
		return &Result{
			Status:  StatusInvalid,
			Content: fmt.Sprintf("unknown tool %q", call.Name),
		}, nil
	}

	if invalid := r.validate(call); invalid != nil {
		r.record(call.Name, StatusInvalid, 0)
		return invalid, nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, env, call.Arguments)
	elapsed := time.Since(start)

	if err != nil {
		if isFatal(err) {
			r.record(call.Name, StatusError, elapsed)
			return nil, err
		}
		slog.Debug("Tool returned an LLM-observable failure",
			"tool", call.Name, "session_id", env.SessionID, "error", err)
		result = errorResult(err)
	}

	r.record(call.Name, result.Status, elapsed)
	return result, nil
}

// validate checks the call arguments against the tool's compiled schema.
func (r *Registry) validate(call models.ToolCall) *Result {
	args := call.Arguments
	if len(args) == 0 {
		args = []byte("{}")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return &Result{
			Status:  StatusInvalid,
			Content: fmt.Sprintf("arguments for %s are not valid JSON: %v", call.Name, err),
		}
	}
	if err := r.validators[call.Name].Validate(doc); err != nil {
		return &Result{
			Status:  StatusInvalid,
			Content: fmt.Sprintf("invalid arguments for %s: %v", call.Name, err),
		}
	}
	return nil
}

func (r *Registry) record(tool, status string, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordToolExecution(tool, status, elapsed.Seconds())
	}
}

// rawArguments decodes the call arguments for event payloads, falling
// back to the raw string when the model produced invalid JSON.
func rawArguments(call models.ToolCall) any {
	var decoded map[string]any
	if err := json.Unmarshal(call.Arguments, &decoded); err != nil {
		return string(call.Arguments)
	}
	return decoded
}
