package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dana-ai/dana/pkg/models"
)

// Publisher emits typed events onto one session's stream. It assigns the
// monotonically increasing per-session sequence and the emission timestamp,
// marshals once, and hands the bytes to the bus.
//
// A publisher is owned by the session's strategy goroutine; the sequence
// counter is atomic only so tools invoked on that goroutine can share it.
type Publisher struct {
	bus       *Bus
	sessionID string
	seq       atomic.Int64
}

// NewPublisher creates a publisher for a registered session stream.
func NewPublisher(bus *Bus, sessionID string) *Publisher {
	return &Publisher{bus: bus, sessionID: sessionID}
}

// SessionID returns the session this publisher emits for.
func (p *Publisher) SessionID() string {
	return p.sessionID
}

// envelope fills the shared fields for one event.
func (p *Publisher) envelope(eventType string) Envelope {
	return Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: p.sessionID,
		Seq:       p.seq.Add(1),
	}
}

// publish marshals and appends one event. Failures are logged, not
// propagated: event delivery must never abort a running strategy.
func (p *Publisher) publish(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal event", "type", eventType, "session_id", p.sessionID, "error", err)
		return
	}
	if err := p.bus.Publish(p.sessionID, eventType, data); err != nil {
		slog.Warn("Failed to publish event", "type", eventType, "session_id", p.sessionID, "error", err)
	}
}

// AgentStarted emits the first event of a session run.
func (p *Publisher) AgentStarted(userRequest, mode string) {
	p.publish(EventTypeAgentStarted, AgentStartedPayload{
		Envelope:    p.envelope(EventTypeAgentStarted),
		UserRequest: userRequest,
		Mode:        mode,
	})
}

// PhaseChange announces a phase transition.
func (p *Publisher) PhaseChange(phase string) {
	p.publish(EventTypePhaseChange, PhaseChangePayload{
		Envelope: p.envelope(EventTypePhaseChange),
		Phase:    phase,
	})
}

// DataExplored carries dataset schema and statistics from read_dataset.
func (p *Publisher) DataExplored(schema, statistics, preview any) {
	p.publish(EventTypeDataExplored, DataExploredPayload{
		Envelope:   p.envelope(EventTypeDataExplored),
		Schema:     schema,
		Statistics: statistics,
		Preview:    preview,
	})
}

// TasksPlanned carries the initial code-authored task list.
func (p *Publisher) TasksPlanned(tasks []models.Task, analysisGoal string) {
	p.publish(EventTypeTasksPlanned, TasksPlannedPayload{
		Envelope:     p.envelope(EventTypeTasksPlanned),
		Tasks:        tasks,
		AnalysisGoal: analysisGoal,
	})
}

// TasksUpdated carries a full task list snapshot after any change.
func (p *Publisher) TasksUpdated(tasks []models.Task, source string) {
	p.publish(EventTypeTasksUpdated, TasksUpdatedPayload{
		Envelope: p.envelope(EventTypeTasksUpdated),
		Tasks:    tasks,
		Source:   source,
	})
}

// TaskStarted marks a task entering in_progress.
func (p *Publisher) TaskStarted(taskID int, taskName string, iteration int) {
	p.publish(EventTypeTaskStarted, TaskStartedPayload{
		Envelope:  p.envelope(EventTypeTaskStarted),
		TaskID:    taskID,
		TaskName:  taskName,
		Iteration: iteration,
	})
}

// TaskCompleted marks a task reaching completed.
func (p *Publisher) TaskCompleted(taskID int, taskName string) {
	p.publish(EventTypeTaskCompleted, TaskCompletedPayload{
		Envelope: p.envelope(EventTypeTaskCompleted),
		TaskID:   taskID,
		TaskName: taskName,
	})
}

// TaskFailed marks a task abandoned after errors.
func (p *Publisher) TaskFailed(taskID int, taskName, errText string) {
	p.publish(EventTypeTaskFailed, TaskFailedPayload{
		Envelope: p.envelope(EventTypeTaskFailed),
		TaskID:   taskID,
		TaskName: taskName,
		Error:    errText,
	})
}

// LLMStreaming emits one throttled batch of streaming deltas.
func (p *Publisher) LLMStreaming(iteration int, streamType, delta, fullContent string) {
	p.publish(EventTypeLLMStreaming, LLMStreamingPayload{
		Envelope:         p.envelope(EventTypeLLMStreaming),
		Iteration:        iteration,
		StreamType:       streamType,
		Delta:            delta,
		FullContentSoFar: fullContent,
	})
}

// LLMThinking emits a consolidated reasoning block.
func (p *Publisher) LLMThinking(thinking string, isReal bool, taskID, iteration int) {
	p.publish(EventTypeLLMThinking, LLMThinkingPayload{
		Envelope:  p.envelope(EventTypeLLMThinking),
		Thinking:  thinking,
		IsReal:    isReal,
		TaskID:    taskID,
		Iteration: iteration,
	})
}

// ToolCall emits the invocation half of a tool call/result pair.
func (p *Publisher) ToolCall(toolName string, arguments any, callID string, iteration int) {
	p.publish(EventTypeToolCall, ToolCallPayload{
		Envelope:  p.envelope(EventTypeToolCall),
		ToolName:  toolName,
		Arguments: arguments,
		CallID:    callID,
		Iteration: iteration,
	})
}

// ToolResult emits the outcome half of a tool call/result pair.
func (p *Publisher) ToolResult(toolName, callID, status, stdoutPreview string, hasImage bool, iteration int) {
	p.publish(EventTypeToolResult, ToolResultPayload{
		Envelope:      p.envelope(EventTypeToolResult),
		ToolName:      toolName,
		CallID:        callID,
		Status:        status,
		StdoutPreview: stdoutPreview,
		HasImage:      hasImage,
		Iteration:     iteration,
	})
}

// CodeGenerated is emitted alongside tool_call for run_code.
func (p *Publisher) CodeGenerated(taskID int, code, description string) {
	p.publish(EventTypeCodeGenerated, CodeGeneratedPayload{
		Envelope:    p.envelope(EventTypeCodeGenerated),
		TaskID:      taskID,
		Code:        code,
		Description: description,
	})
}

// ImageGenerated carries a chart produced by a code execution.
func (p *Publisher) ImageGenerated(taskID int, taskName, imageBase64 string) {
	p.publish(EventTypeImageGenerated, ImageGeneratedPayload{
		Envelope:    p.envelope(EventTypeImageGenerated),
		TaskID:      taskID,
		TaskName:    taskName,
		ImageBase64: imageBase64,
	})
}

// ReportGenerated carries the final Markdown report.
func (p *Publisher) ReportGenerated(report string) {
	p.publish(EventTypeReportGenerated, ReportGeneratedPayload{
		Envelope: p.envelope(EventTypeReportGenerated),
		Report:   report,
	})
}

// AgentWarning emits a non-terminal warning.
func (p *Publisher) AgentWarning(warning string, incompleteTasks int) {
	p.publish(EventTypeAgentWarning, AgentWarningPayload{
		Envelope:             p.envelope(EventTypeAgentWarning),
		Warning:              warning,
		IncompleteTasksCount: incompleteTasks,
	})
}

// AgentCompleted emits the terminal completion event and closes the stream.
func (p *Publisher) AgentCompleted(finalReport string, images []models.Image, reachedMax bool, incompleteTasks int) {
	if images == nil {
		images = []models.Image{}
	}
	p.publish(EventTypeAgentCompleted, AgentCompletedPayload{
		Envelope:             p.envelope(EventTypeAgentCompleted),
		FinalReport:          finalReport,
		Images:               images,
		ReachedMaxIterations: reachedMax,
		IncompleteTasksCount: incompleteTasks,
	})
}

// AgentError emits the terminal infrastructure-failure event and closes
// the stream.
func (p *Publisher) AgentError(err error, where string) {
	p.publish(EventTypeAgentError, AgentErrorPayload{
		Envelope: p.envelope(EventTypeAgentError),
		Error:    fmt.Sprintf("%v", err),
		Where:    where,
	})
}

// AgentStopped emits the terminal cancellation event and closes the stream.
func (p *Publisher) AgentStopped(reason string) {
	p.publish(EventTypeAgentStopped, AgentStoppedPayload{
		Envelope: p.envelope(EventTypeAgentStopped),
		Reason:   reason,
	})
}
