package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
)

// hybrid has code own the plan and its order while the LLM works each
// task freely with tools, signalling completion with [TASK_DONE]. A task
// that exhausts its inner turn allowance is closed as completed anyway so
// the run keeps moving.
type hybrid struct{}

func (s *hybrid) Name() string { return "hybrid" }

func (s *hybrid) Run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	result, err := s.run(ctx, ec)
	if errors.Is(err, errExhausted) {
		return exhaustedResult(ec), nil
	}
	return result, err
}

func (s *hybrid) run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	ec.Publisher.PhaseChange("exploring")
	profile, err := exploreDataset(ctx, ec)
	if err != nil {
		return nil, err
	}

	conv := newConversation(ec, hybridSystemPrompt)
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

// runTask lets the LLM work one task for at most MaxIterationsPerTask
// turns, watching for the [TASK_DONE] sentinel.
func (s *hybrid) runTask(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, task models.Task) error {
	startTask(ec, task, ec.Iterations.Current()+1)
	conv.add(models.UserMessage(taskExecutionPrompt(task)))
	defs := ec.Tools.DefinitionsFor("read_dataset", "run_code")

	for inner := 0; inner < ec.Config.MaxIterationsPerTask; inner++ {
		resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), Tools: defs})
		if err != nil {
			return err
		}
		conv.add(models.AssistantMessage(resp.Content, resp.ToolCalls))

		if resp.HasToolCalls() {
			if _, err := dispatchCalls(ctx, ec, conv, resp.ToolCalls); err != nil {
				return err
			}
			continue
		}

		if strings.Contains(resp.Content, sentinelTaskDone) {
			summary := strings.TrimSpace(strings.ReplaceAll(resp.Content, sentinelTaskDone, ""))
			finishTask(ec, task, models.TaskStatusCompleted, summary, "")
			return nil
		}
		conv.add(models.UserMessage(hybridVerificationPrompt(task)))
	}

	// Inner allowance spent without the sentinel. Close the task so the
	// run progresses; the report turn still sees everything produced.
	finishTask(ec, task, models.TaskStatusCompleted, "closed after reaching the per-task turn limit", "")
	return nil
}
