package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
)

// maxTaskRetries bounds how often a task that answered [TASK_RETRY] at
// verification is re-attempted before it is marked failed.
const maxTaskRetries = 3

// taskDriven keeps the runtime in charge of pacing: code explores the
// dataset, the LLM plans once via todo_write, then each task is executed
// and verified in its own focused exchange.
type taskDriven struct{}

func (s *taskDriven) Name() string { return "task_driven" }

func (s *taskDriven) Run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	result, err := s.run(ctx, ec)
	if errors.Is(err, errExhausted) {
		return exhaustedResult(ec), nil
	}
	return result, err
}

func (s *taskDriven) run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	ec.Publisher.PhaseChange("exploring")
	profile, err := exploreDataset(ctx, ec)
	if err != nil {
		return nil, err
	}

	conv := newConversation(ec, taskDrivenSystemPrompt)
	if err := s.plan(ctx, ec, conv, profile); err != nil {
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

// plan asks for the initial task list via todo_write and insists until
// one exists. The iteration budget bounds the insistence.
func (s *taskDriven) plan(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, profile string) error {
	ec.Publisher.PhaseChange("planning")
	conv.add(models.UserMessage(planningPrompt(profile)))
	defs := ec.Tools.DefinitionsFor("todo_write")

	for len(ec.State.Tasks()) == 0 {
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
		conv.add(models.UserMessage("No plan was recorded. Call todo_write with merge=false and the task list now."))
	}
	return nil
}

// runTask drives one task through execute and verify exchanges, retrying
// on [TASK_RETRY] up to maxTaskRetries times.
func (s *taskDriven) runTask(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, task models.Task) error {
	startTask(ec, task, ec.Iterations.Current()+1)

	for attempt := 0; ; attempt++ {
		if attempt == 0 {
			conv.add(models.UserMessage(taskExecutionPrompt(task)))
		} else {
			conv.add(models.UserMessage(fmt.Sprintf("Retry task %d (%s), attempt %d of %d. Address what went wrong last time.",
				task.ID, task.Name, attempt+1, maxTaskRetries+1)))
		}

		if err := s.workUntilText(ctx, ec, conv); err != nil {
			return err
		}

		verdict, err := s.verify(ctx, ec, conv, task)
		if err != nil {
			return err
		}

		if current, ok := s.lookupTask(ec, task.ID); ok && current.Status == models.TaskStatusCompleted {
			ec.Publisher.TaskCompleted(task.ID, task.Name)
			return nil
		}
		if strings.Contains(verdict, sentinelTaskRetry) && attempt < maxTaskRetries {
			continue
		}

		finishTask(ec, task, models.TaskStatusFailed, "",
			fmt.Sprintf("task did not verify after %d attempts", attempt+1))
		return nil
	}
}

// workUntilText loops tool turns until the LLM answers with plain text.
func (s *taskDriven) workUntilText(ctx context.Context, ec *agent.ExecutionContext, conv *conversation) error {
	defs := ec.Tools.DefinitionsFor("read_dataset", "run_code")
	for {
		resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), Tools: defs})
		if err != nil {
			return err
		}
		conv.add(models.AssistantMessage(resp.Content, resp.ToolCalls))
		if !resp.HasToolCalls() {
			return nil
		}
		if _, err := dispatchCalls(ctx, ec, conv, resp.ToolCalls); err != nil {
			return err
		}
	}
}

// verify runs the completion check. The reply either calls todo_write to
// mark the task completed or is text, possibly the retry sentinel. The
// returned string is the last textual verdict.
func (s *taskDriven) verify(ctx context.Context, ec *agent.ExecutionContext, conv *conversation, task models.Task) (string, error) {
	conv.add(models.UserMessage(taskVerificationPrompt(task)))
	defs := ec.Tools.DefinitionsFor("todo_write")

	for {
		resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), Tools: defs})
		if err != nil {
			return "", err
		}
		conv.add(models.AssistantMessage(resp.Content, resp.ToolCalls))
		if !resp.HasToolCalls() {
			return resp.Content, nil
		}
		if _, err := dispatchCalls(ctx, ec, conv, resp.ToolCalls); err != nil {
			return "", err
		}
		if current, ok := s.lookupTask(ec, task.ID); ok && current.Status.IsTerminal() {
			return resp.Content, nil
		}
	}
}

func (s *taskDriven) lookupTask(ec *agent.ExecutionContext, id int) (models.Task, bool) {
	for _, task := range ec.State.Tasks() {
		if task.ID == id {
			return task, true
		}
	}
	return models.Task{}, false
}
