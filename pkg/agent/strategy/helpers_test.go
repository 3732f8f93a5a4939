package strategy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/session"
	"github.com/dana-ai/dana/pkg/tools"
)

// scriptedTurn is one pre-recorded LLM reply. ToolArgDelta, when set, is
// emitted as an observational tool_call_chunk fragment ahead of the
// completed tool calls, the way the real client streams arguments.
type scriptedTurn struct {
	Content      string
	Reasoning    string
	ToolArgDelta string
	ToolCalls    []models.ToolCall
	Err          error
}

// scriptedLLM plays back a fixed sequence of turns and records every
// request it saw.
type scriptedLLM struct {
	mu    sync.Mutex
	turns []scriptedTurn
	calls []llm.ChatRequest
}

func (c *scriptedLLM) Chat(_ context.Context, req llm.ChatRequest) (<-chan llm.Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)

	turn := scriptedTurn{Err: models.NewError(models.KindLLMFailed, "script exhausted after %d turns", len(c.calls)-1)}
	if len(c.turns) > 0 {
		turn = c.turns[0]
		c.turns = c.turns[1:]
	}

	ch := make(chan llm.Chunk, len(turn.ToolCalls)+4)
	if turn.Reasoning != "" {
		ch <- llm.Chunk{Type: llm.ChunkTypeReasoning, Delta: turn.Reasoning}
	}
	if turn.Content != "" {
		ch <- llm.Chunk{Type: llm.ChunkTypeContent, Delta: turn.Content}
	}
	if turn.ToolArgDelta != "" {
		ch <- llm.Chunk{Type: llm.ChunkTypeToolCall, Delta: turn.ToolArgDelta}
	}
	for i := range turn.ToolCalls {
		ch <- llm.Chunk{Type: llm.ChunkTypeToolCall, ToolCall: &turn.ToolCalls[i]}
	}
	ch <- llm.Chunk{Type: llm.ChunkTypeDone, Err: turn.Err}
	close(ch)
	return ch, nil
}

func (c *scriptedLLM) requests() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatRequest(nil), c.calls...)
}

// fakeRunner plays back a queue of artifacts for run_code executions.
type fakeRunner struct {
	mu        sync.Mutex
	artifacts []*models.Artifact
	codes     []string
}

func (r *fakeRunner) Run(_ context.Context, code string) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	if len(r.artifacts) == 0 {
		return &models.Artifact{Status: models.ExecStatusSuccess, Stdout: "ok"}, nil
	}
	next := r.artifacts[0]
	r.artifacts = r.artifacts[1:]
	return next, nil
}

const testCSV = "region,revenue\nnorth,100\nsouth,250\neast,175\n"

// newTestContext builds an execution context over a real tool registry,
// a scripted LLM, and a throwaway CSV dataset.
func newTestContext(t *testing.T, maxIterations int, script []scriptedTurn, runner tools.CodeRunner) (*agent.ExecutionContext, *events.Subscription, *scriptedLLM) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o644))
	dataset := models.Dataset{Path: path, Filename: "sales.csv", Ext: ".csv", SizeBytes: int64(len(testCSV))}

	bus := events.NewBus(256, nil)
	bus.Register("s1")
	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	pub := events.NewPublisher(bus, "s1")

	registry, err := tools.NewRegistry(nil,
		tools.NewReadDatasetTool(),
		tools.NewRunCodeTool(),
		tools.NewTodoWriteTool(),
	)
	require.NoError(t, err)

	st := session.NewState()
	if runner == nil {
		runner = &fakeRunner{}
	}
	client := &scriptedLLM{turns: script}

	env := &tools.ExecEnv{
		SessionID: "s1",
		State:     st,
		Dataset:   dataset,
		Publisher: pub,
		Runner:    runner,
	}
	ec := &agent.ExecutionContext{
		SessionID:  "s1",
		Request:    "Which region earns the most revenue?",
		Dataset:    dataset,
		State:      st,
		LLM:        client,
		Tools:      registry,
		Env:        env,
		Publisher:  pub,
		Config:     &config.AgentConfig{Mode: config.AgentModeToolDriven, MaxIterations: maxIterations, MaxIterationsPerTask: 3},
		Iterations: agent.NewIterationState(maxIterations, st),
	}
	return ec, sub, client
}

// drainTypes reads every event already delivered to the subscription and
// returns their type fields in order.
func drainTypes(t *testing.T, sub *events.Subscription) []string {
	t.Helper()
	var types []string
	for {
		select {
		case raw, ok := <-sub.Events():
			if !ok {
				return types
			}
			var envelope struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(raw, &envelope))
			types = append(types, envelope.Type)
		default:
			return types
		}
	}
}

// drainEvents decodes every delivered event into generic maps.
func drainEvents(t *testing.T, sub *events.Subscription) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case raw, ok := <-sub.Events():
			if !ok {
				return out
			}
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(raw, &decoded))
			out = append(out, decoded)
		default:
			return out
		}
	}
}

func eventsOfType(evts []map[string]any, eventType string) []map[string]any {
	var out []map[string]any
	for _, evt := range evts {
		if evt["type"] == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func call(id, name, args string) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// markdownReport is long and structured enough to pass the report check.
const markdownReport = `# Revenue Analysis

## Findings

- The south region leads with total revenue of 250, ahead of east (175) and north (100).
- Revenue concentration is high: the top region accounts for nearly half of the total.

## Recommendation

Focus retention spending on the south region while investigating the north shortfall.`
