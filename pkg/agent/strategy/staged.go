package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/tools"
)

// staged walks fixed phases with no free-form looping: code explores,
// the LLM plans once in JSON, each task gets exactly one run_code turn
// plus one recovery retry, then the report turn closes the run.
type staged struct{}

func (s *staged) Name() string { return "staged" }

func (s *staged) Run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	result, err := s.run(ctx, ec)
	if errors.Is(err, errExhausted) {
		return exhaustedResult(ec), nil
	}
	return result, err
}

func (s *staged) run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	ec.Publisher.PhaseChange("exploring")
	profile, err := exploreDataset(ctx, ec)
	if err != nil {
		return nil, err
	}

	conv := newConversation(ec, stagedSystemPrompt)
	if err := planCodeOwnedTasks(ctx, ec, conv, profile); err != nil {
		return nil, err
	}

	ec.Publisher.PhaseChange("executing")
	for {
		task, ok := nextPendingTask(ec)
		if !ok {
			break
		}
		if err := s.runTask(ctx, ec, conv, task); err != nil {
			return nil, err
		}
	}

	return writeReport(ctx, ec, conv)
}

// runTask asks for one run_code call and grants a single corrected retry
// when it fails.
func (s *staged) runTask(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, task models.Task) error {
	startTask(ec, task, ec.Iterations.Current()+1)

	status, detail, err := s.executeOnce(ctx, ec, conv, stagedExecutionPrompt(task))
	if err != nil {
		return err
	}
	if status != tools.StatusSuccess {
		status, detail, err = s.executeOnce(ctx, ec, conv, stagedRecoveryPrompt(task, detail))
		if err != nil {
			return err
		}
	}

	if status == tools.StatusSuccess {
		finishTask(ec, task, models.TaskStatusCompleted, detail, "")
	} else {
		finishTask(ec, task, models.TaskStatusFailed, "", detail)
	}
	return nil
}

// executeOnce runs one prompted turn and dispatches its first run_code
// call. A turn that calls nothing counts as an error outcome so the
// recovery retry can insist.
func (s *staged) executeOnce(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, prompt string) (string, string, error) {
	conv.add(models.UserMessage(prompt))
	defs := ec.Tools.DefinitionsFor("run_code")

	resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), Tools: defs})
	if err != nil {
		return "", "", err
	}
	conv.add(models.AssistantMessage(resp.Content, resp.ToolCalls))

	if !resp.HasToolCalls() {
		return tools.StatusError, "the reply contained no run_code call", nil
	}

	results, err := dispatchCalls(ctx, ec, conv, resp.ToolCalls)
	if err != nil {
		return "", "", err
	}

	first := results[0]
	if first.Status == tools.StatusSuccess {
		return first.Status, first.StdoutPreview, nil
	}
	return first.Status, fmt.Sprintf("status %s: %s", first.Status, first.Content), nil
}
