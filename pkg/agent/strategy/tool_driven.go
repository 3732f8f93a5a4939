package strategy

import (
	"context"
	"errors"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
)

// toolDriven gives the LLM full agency: it owns the task list through
// todo_write and decides itself when to explore, execute, and report. The
// run ends when a textual turn arrives with no open tasks and the text
// reads like a report.
type toolDriven struct{}

func (s *toolDriven) Name() string { return "tool_driven" }

func (s *toolDriven) Run(ctx context.Context, ec *agent.ExecutionContext) (*agent.Result, error) {
	conv := newConversation(ec, toolDrivenSystemPrompt)
	defs := ec.Tools.Definitions()

	for {
		resp, _, err := turn(ctx, ec, llm.ChatRequest{Messages: conv.messages(), Tools: defs})
		if errors.Is(err, errExhausted) {
			return exhaustedResult(ec), nil
		}
		if err != nil {
			return nil, err
		}
		conv.add(models.AssistantMessage(resp.Content, resp.ToolCalls))

		if resp.HasToolCalls() {
			if _, err := dispatchCalls(ctx, ec, conv, resp.ToolCalls); err != nil {
				return nil, err
			}
			continue
		}

		if allTasksDone(ec) && looksLikeReport(resp.Content) {
			_ = ec.State.SetReport(resp.Content)
			ec.Publisher.ReportGenerated(resp.Content)
			return completedResult(ec, resp.Content), nil
		}

		conv.add(models.UserMessage(continueReminder(ec.State.IncompleteTaskCount())))
	}
}
