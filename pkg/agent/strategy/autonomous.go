package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
)

// autonomous gives the LLM a rolling conversation where task state lives
// in tagged text blocks: every reply carries a <tasks> checklist that the
// runtime parses into the session's task list, and a <thinking> block
// surfaced as real thinking. The run ends when a reply carries the
// completion sentinel; the remaining body is the report.
type autonomous struct{}

func (s *autonomous) Name() string { return "autonomous" }

func (s *autonomous) Run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	conv := newConversation(ec, autonomousSystemPrompt)
	defs := ec.Tools.DefinitionsFor("read_dataset", "run_code")

	for {
		resp, iteration, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), Tools: defs})
		if errors.Is(err, errExhausted) {
			return exhaustedResult(ec), nil
		}
		if err != nil {
			return nil, err
		}

		parsed := parseTurn(resp.Content)
		if parsed.Thinking != "" {
			ec.Publisher.LLMThinking(parsed.Thinking, true, currentTaskID(ec), iteration)
		}
		if parsed.HasTasks {
			s.syncTasks(ec, parsed.Tasks)
		}

		// The thinking block is private reasoning; drop it from the
		// history the model sees again. The tasks block stays so the
		// model can keep its own list current.
		stripped := strings.TrimSpace(thinkingBlockRe.ReplaceAllString(resp.Content, ""))
		conv.add(models.AssistantMessage(stripped, resp.ToolCalls))

		if resp.HasToolCalls() {
			if _, err := dispatchCalls(ctx, ec, conv, resp.ToolCalls); err != nil {
				return nil, err
			}
			continue
		}

		// The completion sentinel alone ends the run; the body is the
		// report even when it is short.
		if parsed.Complete {
			_ = ec.State.SetReport(parsed.Body)
			ec.Publisher.ReportGenerated(parsed.Body)
			return completedResult(ec, parsed.Body), nil
		}

		conv.add(models.UserMessage(autonomousContinueReminder))
	}
}

// syncTasks reconciles a parsed checklist into the session task list.
// Names identify tasks across turns: known names keep their ids, new
// names are appended, and names the model dropped fall off the list.
func (s *autonomous) syncTasks(ec *agent.ExecutionContext, parsed []parsedTask) {
	existing := make(map[string]models.Task)
	nextID := 0
	for _, task := range ec.State.Tasks() {
		existing[task.Name] = task
		if task.ID > nextID {
			nextID = task.ID
		}
	}

	tasks := make([]models.Task, 0, len(parsed))
	for _, pt := range parsed {
		if prev, ok := existing[pt.Name]; ok {
			if pt.Done && !prev.Status.IsTerminal() {
				prev.Status = models.TaskStatusCompleted
			}
			tasks = append(tasks, prev)
			continue
		}
		nextID++
		status := models.TaskStatusPending
		if pt.Done {
			status = models.TaskStatusCompleted
		}
		tasks = append(tasks, models.Task{
			ID:     nextID,
			Name:   pt.Name,
			Type:   planTaskType(planTask{Name: pt.Name}),
			Status: status,
		})
	}

	if err := ec.State.ReplaceTasks(tasks); err != nil {
		// A list violating the single in_progress rule cannot come out
		// of this reconciliation; an invalid one is dropped silently.
		return
	}
	ec.Publisher.TasksUpdated(ec.State.Tasks(), events.TaskSourceLLM)
}
