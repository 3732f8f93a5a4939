// Package events provides the per-session event stream: an append-only,
// strictly ordered log with pre-subscriber buffering, multi-subscriber
// fan-out, and WebSocket delivery.
//
// Every session registers a stream before its strategy goroutine starts,
// so events emitted before the client attaches are retained and replayed
// in order on subscribe. A terminal event (agent_completed, agent_error,
// agent_stopped) closes the stream; late subscribers still replay the full
// log and then observe the closed channel.
package events

// Event types carried on session streams. Each event is a JSON envelope
// with type, timestamp, session_id, seq, plus type-specific payload fields
// (see payloads.go).
const (
	// EventTypeConnected acknowledges a WebSocket subscriber handshake.
	EventTypeConnected = "connected"

	// Session lifecycle
	EventTypeAgentStarted = "agent_started"
	EventTypePhaseChange  = "phase_change"

	// Dataset and task planning
	EventTypeDataExplored = "data_explored"
	EventTypeTasksPlanned = "tasks_planned"
	EventTypeTasksUpdated = "tasks_updated"

	// Per-task transitions
	EventTypeTaskStarted   = "task_started"
	EventTypeTaskCompleted = "task_completed"
	EventTypeTaskFailed    = "task_failed"

	// LLM activity
	EventTypeLLMStreaming = "llm_streaming"
	EventTypeLLMThinking  = "llm_thinking"

	// Tool activity
	EventTypeToolCall       = "tool_call"
	EventTypeToolResult     = "tool_result"
	EventTypeCodeGenerated  = "code_generated"
	EventTypeImageGenerated = "image_generated"

	// Results
	EventTypeReportGenerated = "report_generated"
	EventTypeAgentWarning    = "agent_warning"

	// Terminal events. Exactly one closes every stream.
	EventTypeAgentCompleted = "agent_completed"
	EventTypeAgentError     = "agent_error"
	EventTypeAgentStopped   = "agent_stopped"

	// EventTypeSubscriberLagged is a subscription-layer signal delivered
	// only to a subscriber being dropped for falling behind. It is not part
	// of the replayable log.
	EventTypeSubscriberLagged = "subscriber_lagged"
)

// IsTerminal reports whether the event type closes a session stream.
func IsTerminal(eventType string) bool {
	return eventType == EventTypeAgentCompleted ||
		eventType == EventTypeAgentError ||
		eventType == EventTypeAgentStopped
}

// Task list update sources (TasksUpdatedPayload.Source).
const (
	// TaskSourceTool means the LLM updated the list via the todo_write tool.
	TaskSourceTool = "tool"
	// TaskSourceLLM means the list was parsed from tagged LLM text.
	TaskSourceLLM = "llm"
	// TaskSourceCode means the runtime owns the list (task_driven, hybrid, staged).
	TaskSourceCode = "code"
)

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action string `json:"action"` // "ping", "unsubscribe"
}
