package events

import "github.com/dana-ai/dana/pkg/models"

// Envelope carries the fields shared by every event. Payload structs embed
// it so the wire shape stays flat: {"type": ..., "timestamp": ...,
// "session_id": ..., "seq": ..., <payload fields>}.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// ConnectedPayload acknowledges a WebSocket subscriber handshake.
type ConnectedPayload struct {
	Envelope
	ConnectionID string `json:"connection_id"`
}

// AgentStartedPayload is emitted once when the strategy begins.
type AgentStartedPayload struct {
	Envelope
	UserRequest string `json:"user_request"`
	Mode        string `json:"mode"`
}

// PhaseChangePayload announces a lifecycle or strategy sub-phase transition.
type PhaseChangePayload struct {
	Envelope
	Phase string `json:"phase"`
}

// DataExploredPayload carries dataset statistics and schema from read_dataset.
// Schema, statistics, and preview keep the tool's JSON shapes.
type DataExploredPayload struct {
	Envelope
	Schema     any `json:"schema"`
	Statistics any `json:"statistics"`
	Preview    any `json:"preview,omitempty"`
}

// TasksPlannedPayload carries the initial code-authored task list.
type TasksPlannedPayload struct {
	Envelope
	Tasks        []models.Task `json:"tasks"`
	AnalysisGoal string        `json:"analysis_goal,omitempty"`
}

// TasksUpdatedPayload carries a full task list snapshot after any change.
type TasksUpdatedPayload struct {
	Envelope
	Tasks  []models.Task `json:"tasks"`
	Source string        `json:"source"` // tool, llm, code
}

// TaskStartedPayload marks one task entering in_progress.
type TaskStartedPayload struct {
	Envelope
	TaskID    int    `json:"task_id"`
	TaskName  string `json:"task_name"`
	Iteration int    `json:"iteration,omitempty"`
}

// TaskCompletedPayload marks one task reaching completed.
type TaskCompletedPayload struct {
	Envelope
	TaskID   int    `json:"task_id"`
	TaskName string `json:"task_name"`
}

// TaskFailedPayload marks one task abandoned after errors.
type TaskFailedPayload struct {
	Envelope
	TaskID   int    `json:"task_id"`
	TaskName string `json:"task_name"`
	Error    string `json:"error,omitempty"`
}

// LLMStreamingPayload is a throttled batch of streaming deltas from one
// LLM call. Type mirrors llm.ChunkType (content, reasoning, tool_call_chunk).
type LLMStreamingPayload struct {
	Envelope
	Iteration        int    `json:"iteration"`
	StreamType       string `json:"stream_type"`
	Delta            string `json:"delta"`
	FullContentSoFar string `json:"full_content_so_far"`
}

// LLMThinkingPayload carries a consolidated reasoning block. IsReal is
// false for synthetic thinking text fabricated by code-driven strategies.
type LLMThinkingPayload struct {
	Envelope
	Thinking  string `json:"thinking"`
	IsReal    bool   `json:"is_real"`
	TaskID    int    `json:"task_id,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
}

// ToolCallPayload is emitted when the LLM invokes a tool; its ToolResult
// pair follows adjacently with the same call id.
type ToolCallPayload struct {
	Envelope
	ToolName  string `json:"tool_name"`
	Arguments any    `json:"arguments"`
	CallID    string `json:"call_id"`
	Iteration int    `json:"iteration"`
}

// ToolResultPayload carries the observable outcome of a tool invocation.
type ToolResultPayload struct {
	Envelope
	ToolName      string `json:"tool_name"`
	CallID        string `json:"call_id"`
	Status        string `json:"status"`
	StdoutPreview string `json:"stdout_preview,omitempty"`
	HasImage      bool   `json:"has_image"`
	Iteration     int    `json:"iteration"`
}

// CodeGeneratedPayload is emitted alongside tool_call for run_code.
type CodeGeneratedPayload struct {
	Envelope
	TaskID      int    `json:"task_id,omitempty"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// ImageGeneratedPayload carries a chart produced by a code execution.
type ImageGeneratedPayload struct {
	Envelope
	TaskID      int    `json:"task_id,omitempty"`
	TaskName    string `json:"task_name,omitempty"`
	ImageBase64 string `json:"image_base64"`
}

// ReportGeneratedPayload carries the final Markdown report.
type ReportGeneratedPayload struct {
	Envelope
	Report string `json:"report"`
}

// AgentWarningPayload is a non-terminal warning (e.g. iteration exhaustion).
type AgentWarningPayload struct {
	Envelope
	Warning              string `json:"warning"`
	IncompleteTasksCount int    `json:"incomplete_tasks_count"`
}

// AgentCompletedPayload is the terminal event of a successful (or soft
// iteration-capped) run.
type AgentCompletedPayload struct {
	Envelope
	FinalReport          string         `json:"final_report"`
	Images               []models.Image `json:"images"`
	ReachedMaxIterations bool           `json:"reached_max_iterations"`
	IncompleteTasksCount int            `json:"incomplete_tasks_count"`
}

// AgentErrorPayload is the terminal event of an infrastructure failure.
type AgentErrorPayload struct {
	Envelope
	Error string `json:"error"`
	Where string `json:"where"`
}

// AgentStoppedPayload is the terminal event of a client-requested stop.
type AgentStoppedPayload struct {
	Envelope
	Reason string `json:"reason"`
}

// SubscriberLaggedPayload is delivered only to a subscriber being dropped
// because its queue overflowed.
type SubscriberLaggedPayload struct {
	Envelope
	Dropped int `json:"dropped"`
}
