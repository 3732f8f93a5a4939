// Package llm abstracts the chat-completion endpoint behind a streaming
// chunk channel, so strategies never touch the wire protocol.
package llm

import (
	"context"
	"encoding/json"

	"github.com/dana-ai/dana/pkg/models"
)

// ChunkType discriminates streaming chunks. The values double as the
// llm_streaming event "type" field.
type ChunkType string

const (
	// ChunkTypeContent is a fragment of the assistant's textual answer
	ChunkTypeContent ChunkType = "content"
	// ChunkTypeReasoning is a fragment of the model's thinking trace
	ChunkTypeReasoning ChunkType = "reasoning"
	// ChunkTypeToolCall is a tool-call fragment or a completed tool call
	ChunkTypeToolCall ChunkType = "tool_call_chunk"
	// ChunkTypeDone closes a stream; Err is set when the stream failed
	ChunkTypeDone ChunkType = "done"
)

// Chunk is one unit of a streamed LLM response.
//
// Content and reasoning chunks carry text in Delta. Tool-call chunks come
// in two flavors: argument fragments (Delta set, ToolCall nil) for
// observational streaming, and completed calls (ToolCall set) emitted once
// all fragments for that call have been accumulated. The final chunk is
// always ChunkTypeDone; a failed stream sets Err on it.
type Chunk struct {
	Type     ChunkType
	Delta    string
	ToolCall *models.ToolCall
	Err      error
}

// ToolDefinition advertises one tool to the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is the JSON schema for the arguments object.
	Parameters json.RawMessage
}

// ChatRequest is one chat-completion call.
type ChatRequest struct {
	Messages []models.Message
	Tools    []ToolDefinition
	// JSONMode forces a JSON-object response (planning calls).
	JSONMode bool
}

// Response is a fully assembled LLM turn.
type Response struct {
	Content   string
	Reasoning string
	ToolCalls []models.ToolCall
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Client is the chat-completion abstraction strategies depend on.
// Implementations must close the returned channel after the done chunk.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (<-chan Chunk, error)
}

// Collect drains a chunk channel into a Response, invoking onChunk (when
// non-nil) for every chunk so callers can stream deltas onward. It returns
// the error carried by the done chunk, if any.
func Collect(chunks <-chan Chunk, onChunk func(Chunk)) (*Response, error) {
	resp := &Response{}
	var streamErr error

	for chunk := range chunks {
		if onChunk != nil {
			onChunk(chunk)
		}
		switch chunk.Type {
		case ChunkTypeContent:
			resp.Content += chunk.Delta
		case ChunkTypeReasoning:
			resp.Reasoning += chunk.Delta
		case ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
			}
		case ChunkTypeDone:
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
		}
	}

	if streamErr != nil {
		return nil, streamErr
	}
	return resp, nil
}
