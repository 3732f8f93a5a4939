package strategy

import (
	"fmt"
	"strings"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/models"
)

// Sentinels the strategies look for in textual turns.
const (
	sentinelTaskRetry        = "[TASK_RETRY]"
	sentinelTaskDone         = "[TASK_DONE]"
	sentinelAnalysisComplete = "[ANALYSIS_COMPLETE]"
)

const analystRole = `You are a senior data analyst. You work on one uploaded tabular dataset and produce a Markdown analysis report with concrete numbers, clear findings, and charts where they help.

Rules that always apply:
- The dataset file is available to executed code at the path in DATASET_PATH.
- Use matplotlib for charts; any open figure is saved automatically as result.png.
- Write intermediate structured output to result.json when useful.
- Base every claim on the data you actually inspected. Never invent numbers.`

const toolDrivenSystemPrompt = analystRole + `

You own your task list through the todo_write tool:
1. Start by calling read_dataset to understand the data.
2. Plan your analysis with todo_write (merge=false), then keep statuses current with todo_write (merge=true) as you work. Keep at most one task in_progress.
3. Execute each task with run_code.
4. When every task is completed, reply with the final Markdown report as plain text, without calling any tool.`

const taskDrivenSystemPrompt = analystRole + `

You will be driven through the analysis one task at a time. Follow the instructions of each message: plan when asked to plan, work only on the current task when given one, and verify honestly.`

const hybridSystemPrompt = analystRole + `

Work on exactly the task you are given, using tools as needed. When the current task is genuinely done, reply with a short summary ending in ` + sentinelTaskDone + `.`

const autonomousSystemPrompt = analystRole + `

Structure every reply like this:

<thinking>
Your private reasoning about what to do next.
</thinking>

<tasks>
- [x] A task you have finished
- [ ] A task still open
</tasks>

...then either call a tool, or write normal text.

Keep the task list complete and current in every reply. When the whole analysis is finished, write the final Markdown report and end with ` + sentinelAnalysisComplete + `.`

const stagedSystemPrompt = analystRole + `

You are walked through fixed phases: explore, plan, execute each task, report. Answer only what the current phase asks for.`

// userRequestPrompt opens the conversation with the request and dataset.
func userRequestPrompt(ec *agent.ExecutionContext) string {
	return fmt.Sprintf("Dataset: %s (%d bytes)\n\nRequest: %s",
		ec.Dataset.Filename, ec.Dataset.SizeBytes, ec.Request)
}

// planningPrompt asks for the initial task list via todo_write.
func planningPrompt(profile string) string {
	return fmt.Sprintf(`Here is the dataset profile:

%s

Plan the analysis now: call todo_write with merge=false and 3 to 6 concrete tasks that answer the request. Do not execute anything yet.`, profile)
}

// jsonPlanningPrompt asks for a machine-readable plan.
func jsonPlanningPrompt(profile string) string {
	return fmt.Sprintf(`Here is the dataset profile:

%s

Respond with a JSON object only:
{"analysis_goal": "<one sentence>", "tasks": [{"name": "<short name>", "description": "<what to do>", "type": "data_exploration|analysis|visualization|report"}]}

Plan 3 to 6 tasks that answer the request.`, profile)
}

// taskExecutionPrompt focuses the LLM on one task.
func taskExecutionPrompt(task models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Work on task %d now: %s", task.ID, task.Name)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s", task.Description)
	}
	b.WriteString("\nUse tools as needed and report what you found.")
	return b.String()
}

// taskVerificationPrompt asks for an honest completion check.
func taskVerificationPrompt(task models.Task) string {
	return fmt.Sprintf(`Is task %d (%s) genuinely done, with results backed by executed code? If yes, call todo_write with merge=true marking it completed. If something went wrong and it needs another attempt, reply with exactly %s.`,
		task.ID, task.Name, sentinelTaskRetry)
}

// hybridVerificationPrompt asks for the [TASK_DONE] sentinel.
func hybridVerificationPrompt(task models.Task) string {
	return fmt.Sprintf("If task %d (%s) is done, summarize the result in one or two sentences and end with %s. Otherwise continue working with tools.",
		task.ID, task.Name, sentinelTaskDone)
}

// reportPrompt asks for the final Markdown report, no tools.
func reportPrompt(ec *agent.ExecutionContext) string {
	var b strings.Builder
	b.WriteString("All tasks are finished. Write the final Markdown report answering the original request:\n\n")
	b.WriteString(ec.Request)
	b.WriteString("\n\nStructure it with headings, include the concrete numbers you computed, and reference the charts that were produced. Reply with the report only.")
	return b.String()
}

// continueReminder nudges a non-terminal textual turn back to work.
func continueReminder(incompleteTasks int) string {
	if incompleteTasks > 0 {
		return fmt.Sprintf("%d tasks are not completed yet. Continue working: update the task list with todo_write and execute the remaining tasks, or finish them and then write the final report.", incompleteTasks)
	}
	return "That does not look like a final report yet. Continue the analysis, or write the complete Markdown report (headings, findings, numbers) as your next reply."
}

// autonomousContinueReminder keeps the rolling conversation moving.
const autonomousContinueReminder = "Continue. Keep the <tasks> block current, work with tools, and end with " + sentinelAnalysisComplete + " only when the full report is written."

// stagedExecutionPrompt asks for one run_code call for the task.
func stagedExecutionPrompt(task models.Task) string {
	return fmt.Sprintf("Execute task %d: %s\n%s\nRespond with a single run_code call that performs this task.",
		task.ID, task.Name, task.Description)
}

// stagedRecoveryPrompt asks for one corrected retry after a failure.
func stagedRecoveryPrompt(task models.Task, failure string) string {
	return fmt.Sprintf("The code for task %d (%s) failed:\n\n%s\n\nFix the problem and respond with one corrected run_code call.",
		task.ID, task.Name, failure)
}
