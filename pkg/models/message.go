package models

import "encoding/json"

// Role identifies the author of a conversation message
type Role string

const (
	// RoleSystem is the system prompt
	RoleSystem Role = "system"
	// RoleUser is user-authored (or code-injected) input
	RoleUser Role = "user"
	// RoleAssistant is LLM output
	RoleAssistant Role = "assistant"
	// RoleTool is a tool execution result fed back to the LLM
	RoleTool Role = "tool"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant || r == RoleTool
}

// ToolCall is a tool invocation requested by the LLM. Arguments holds the
// raw JSON string produced by the model, validated at dispatch time.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry in a session's append-only conversation history.
// The shape is wire-compatible with OpenAI chat messages: an assistant
// message may carry tool calls with empty content, and a tool message
// carries the result payload plus the call id it answers.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set only for role=tool
}

// SystemMessage builds a system-role message
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool-role message answering the given call id
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}
