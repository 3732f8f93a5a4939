// Package tools implements the agent-facing tool surface: read_dataset,
// run_code, and todo_write, plus the registry that advertises them to the
// LLM and validates every invocation.
package tools

import (
	"context"
	"encoding/json"

	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/session"
)

// Tool is one callable capability advertised to the LLM. Schema is
// generated once at construction and must describe the arguments object.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, env *ExecEnv, args json.RawMessage) (*Result, error)
}

// CodeRunner executes one Python snippet. Satisfied by sandbox.Executor;
// tests substitute fakes.
type CodeRunner interface {
	Run(ctx context.Context, code string) (*models.Artifact, error)
}

// ExecEnv is everything a tool may touch during one session. The strategy
// goroutine owns it and bumps Iteration before each dispatch round.
type ExecEnv struct {
	SessionID string
	State     *session.State
	Dataset   models.Dataset
	Publisher *events.Publisher
	Runner    CodeRunner

	// Iteration attributes tool events to the LLM call that requested them.
	Iteration int
}

// Result statuses beyond the sandbox execution statuses.
const (
	// StatusSuccess means the tool did what was asked.
	StatusSuccess = "success"
	// StatusError means the tool ran but the operation failed; the payload
	// explains why and the LLM is expected to adapt.
	StatusError = "error"
	// StatusTimeout means a sandboxed execution hit the wall clock.
	StatusTimeout = "timeout"
	// StatusInvalid means the arguments did not validate against the schema.
	StatusInvalid = "invalid"
)

// Result is the observable outcome of one tool invocation. Content is fed
// back to the LLM verbatim as the tool message; the other fields drive the
// tool_result event.
type Result struct {
	Content       string
	Status        string
	StdoutPreview string
	HasImage      bool
}

// errorResult renders a non-fatal kinded failure as a tool payload.
func errorResult(err error) *Result {
	status := StatusError
	switch models.KindOf(err) {
	case models.KindInvalidInput:
		status = StatusInvalid
	case models.KindTimeout:
		status = StatusTimeout
	}
	return &Result{Content: err.Error(), Status: status}
}

// isFatal reports whether a tool error must abort the run instead of
// being fed back to the LLM.
func isFatal(err error) bool {
	switch models.KindOf(err) {
	case models.KindExecutorUnavailable, models.KindCancelled:
		return true
	}
	return false
}
