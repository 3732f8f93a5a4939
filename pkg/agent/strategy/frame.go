// Package strategy implements the five loop disciplines that drive an
// analysis session: tool_driven, task_driven, hybrid, autonomous, staged.
// They share one frame: budgeted streaming LLM calls, tool dispatch, and
// conversation recording.
package strategy

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/tools"
)

const (
	// streamFlushInterval and streamFlushRunes bound llm_streaming event
	// frequency: a batch goes out when either threshold is hit.
	streamFlushInterval = 100 * time.Millisecond
	streamFlushRunes    = 50
)

// errExhausted unwinds nested loops when the iteration budget is spent.
// Strategies convert it into a soft exhaustion result at the top level.
var errExhausted = errors.New("iteration budget exhausted")

// conversation is the strategy's local message history mirrored into the
// session state.
type conversation struct {
	ec   *agent.ExecutionContext
	msgs []models.Message
}

func newConversation(ec *agent.ExecutionContext, system string) *conversation {
	c := &conversation{ec: ec}
	c.add(models.SystemMessage(system))
	c.add(models.UserMessage(userRequestPrompt(ec)))
	return c
}

func (c *conversation) add(msg models.Message) {
	c.msgs = append(c.msgs, msg)
	_ = c.ec.State.AppendMessage(msg)
}

func (c *conversation) messages() []models.Message {
	return c.msgs
}

// streamAccum batches deltas of one stream type between flushes.
type streamAccum struct {
	pending   strings.Builder
	full      strings.Builder
	lastFlush time.Time
}

// turn performs one budgeted, streaming LLM call: it consumes an
// iteration, emits throttled llm_streaming events, forwards reasoning as
// a consolidated llm_thinking, and returns the assembled response.
func turn(ctx context.Context, ec *agent.ExecutionContext, req llm.ChatRequest) (*llm.Response, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, models.WrapError(models.KindCancelled, err, "run cancelled")
	}
	iteration, ok := ec.Iterations.Next()
	if !ok {
		return nil, iteration, errExhausted
	}
	ec.Env.Iteration = iteration

	chunks, err := ec.LLM.Chat(ctx, req)
	if err != nil {
		return nil, iteration, err
	}

	streams := map[llm.ChunkType]*streamAccum{
		llm.ChunkTypeContent:   {lastFlush: time.Now()},
		llm.ChunkTypeReasoning: {lastFlush: time.Now()},
		llm.ChunkTypeToolCall:  {lastFlush: time.Now()},
	}
	flush := func(chunkType llm.ChunkType, a *streamAccum) {
		if a.pending.Len() == 0 {
			return
		}
		ec.Publisher.LLMStreaming(iteration, string(chunkType), a.pending.String(), a.full.String())
		a.pending.Reset()
		a.lastFlush = time.Now()
	}

	resp, err := llm.Collect(chunks, func(chunk llm.Chunk) {
		a, ok := streams[chunk.Type]
		if !ok || chunk.Delta == "" {
			return
		}
		a.full.WriteString(chunk.Delta)
		a.pending.WriteString(chunk.Delta)
		if time.Since(a.lastFlush) >= streamFlushInterval ||
			utf8.RuneCountInString(a.pending.String()) >= streamFlushRunes {
			flush(chunk.Type, a)
		}
	})
	for chunkType, a := range streams {
		flush(chunkType, a)
	}
	if err != nil {
		return nil, iteration, err
	}

	if resp.Reasoning != "" {
		ec.Publisher.LLMThinking(resp.Reasoning, true, currentTaskID(ec), iteration)
	}
	return resp, iteration, nil
}

// dispatchCalls executes every tool call of one assistant turn, checking
// cancellation at each tool boundary. Results are appended to the
// conversation and also returned for strategies that inspect outcomes.
func dispatchCalls(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, calls []models.ToolCall) ([]*tools.Result, error) {
	results := make([]*tools.Result, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, models.WrapError(models.KindCancelled, err, "run cancelled")
		}
		result, err := ec.Tools.Dispatch(ctx, ec.Env, call)
		if err != nil {
			return nil, err
		}
		conv.add(models.ToolMessage(call.ID, result.Content))
		results = append(results, result)
	}
	return results, nil
}

// currentTaskID returns the id of the in_progress task, or 0.
func currentTaskID(ec *agent.ExecutionContext) int {
	for _, task := range ec.State.Tasks() {
		if task.Status == models.TaskStatusInProgress {
			return task.ID
		}
	}
	return 0
}

// startTask marks a task in_progress and announces it.
func startTask(ec *agent.ExecutionContext, task models.Task, iteration int) {
	now := time.Now()
	_ = ec.State.UpdateTask(task.ID, func(t *models.Task) {
		t.Status = models.TaskStatusInProgress
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	})
	ec.Publisher.TaskStarted(task.ID, task.Name, iteration)
	ec.Publisher.TasksUpdated(ec.State.Tasks(), events.TaskSourceCode)
}

// finishTask moves a task to a terminal status and announces it.
func finishTask(ec *agent.ExecutionContext, task models.Task, status models.TaskStatus, result, errText string) {
	now := time.Now()
	_ = ec.State.UpdateTask(task.ID, func(t *models.Task) {
		t.Status = status
		t.Result = result
		t.Error = errText
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	})
	switch status {
	case models.TaskStatusFailed:
		ec.Publisher.TaskFailed(task.ID, task.Name, errText)
	case models.TaskStatusCompleted:
		ec.Publisher.TaskCompleted(task.ID, task.Name)
	}
	ec.Publisher.TasksUpdated(ec.State.Tasks(), events.TaskSourceCode)
}

// nextPendingTask returns the first non-terminal task in list order.
func nextPendingTask(ec *agent.ExecutionContext) (models.Task, bool) {
	for _, task := range ec.State.Tasks() {
		if !task.Status.IsTerminal() {
			return task, true
		}
	}
	return models.Task{}, false
}

// allTasksDone reports whether no task remains open. An empty list counts
// as done: the LLM never planned one.
func allTasksDone(ec *agent.ExecutionContext) bool {
	return ec.State.IncompleteTaskCount() == 0
}

// markdownIndicators are the shapes that make text look like a report.
var markdownIndicators = []string{"# ", "## ", "### ", "**", "- ", "* ", "|", "```", "1. "}

// looksLikeReport applies the report heuristic: at least 200 characters
// of text carrying at least two Markdown indicators.
func looksLikeReport(text string) bool {
	if utf8.RuneCountInString(text) < 200 {
		return false
	}
	found := 0
	for _, indicator := range markdownIndicators {
		if strings.Contains(text, indicator) {
			found++
			if found >= 2 {
				return true
			}
		}
	}
	return false
}

// exhaustedResult wraps up a run that spent its iteration budget:
// whatever report and images exist are returned as a soft completion.
func exhaustedResult(ec *agent.ExecutionContext) *agent.Result {
	return &agent.Result{
		Report:               ec.State.Report(),
		Images:               ec.State.Images(),
		ReachedMaxIterations: true,
		IncompleteTasks:      ec.State.IncompleteTaskCount(),
	}
}

// completedResult wraps up a successful run.
func completedResult(ec *agent.ExecutionContext, report string) *agent.Result {
	return &agent.Result{
		Report:          report,
		Images:          ec.State.Images(),
		IncompleteTasks: ec.State.IncompleteTaskCount(),
	}
}

// writeReport runs the final no-tools report turn and publishes the
// result. The report heuristic is not applied here: the turn is asked
// for a report explicitly.
func writeReport(ctx context.Context, ec *agent.ExecutionContext, conv *conversation) (*agent.Result, error) {
	ec.Publisher.PhaseChange("reporting")
	conv.add(models.UserMessage(reportPrompt(ec)))

	resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages()})
	if errors.Is(err, errExhausted) {
		return exhaustedResult(ec), nil
	}
	if err != nil {
		return nil, err
	}
	conv.add(models.AssistantMessage(resp.Content, nil))

	_ = ec.State.SetReport(resp.Content)
	ec.Publisher.ReportGenerated(resp.Content)
	return completedResult(ec, resp.Content), nil
}

// exploreDataset performs the code-driven read_dataset call that opens
// code-owned strategies, returning the profile payload for the planning
// prompt.
func exploreDataset(ctx context.Context, ec *agent.ExecutionContext) (string, error) {
	tool, ok := ec.Tools.Get("read_dataset")
	if !ok {
		return "", models.NewError(models.KindInvalidState, "read_dataset tool not registered")
	}
	result, err := tool.Execute(ctx, ec.Env, []byte(`{}`))
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
