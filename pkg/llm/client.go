package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
)

// OpenAIClient implements Client against any OpenAI-compatible endpoint
// using the sashabaranov/go-openai SDK. Each Chat call opens an
// independent stream and pump goroutine; the client is safe for
// concurrent use across sessions.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	metrics    *metrics.Metrics
}

// NewOpenAIClient builds a client from configuration. BaseURL may point at
// api.openai.com or any compatible server (vLLM, Ollama, a gateway).
func NewOpenAIClient(cfg *config.LLMConfig, m *metrics.Metrics) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		timeout:    cfg.RequestTimeout(),
		maxRetries: cfg.MaxRetries,
		metrics:    m,
	}
}

// Chat opens a streaming chat completion. Establishing the stream is
// retried with exponential backoff on transient failures; once
// established, chunks flow on the returned channel until the done chunk.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: convertMessages(req.Messages),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)

	stream, err := c.openStream(reqCtx, chatReq)
	if err != nil {
		cancel()
		if c.metrics != nil {
			c.metrics.RecordLLMCall("error", 0)
		}
		return nil, models.WrapError(models.KindLLMFailed, err, "opening chat completion stream")
	}

	chunks := make(chan Chunk)
	go c.pump(reqCtx, cancel, stream, chunks)

	return chunks, nil
}

// openStream establishes the completion stream, retrying transient
// failures (rate limits, 5xx, timeouts) up to maxRetries times.
func (c *OpenAIClient) openStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	var stream *openai.ChatCompletionStream
	attempt := 0

	operation := func() error {
		var err error
		stream, err = c.client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		attempt++
		if c.metrics != nil {
			c.metrics.LLMRetries.Inc()
		}
		slog.Warn("Retrying LLM stream after transient error", "attempt", attempt, "error", err)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return stream, nil
}

// pump reads the SDK stream and converts deltas to chunks. Tool-call
// fragments are forwarded as observational deltas and accumulated by
// index; completed calls are emitted once the stream finishes.
func (c *OpenAIClient) pump(ctx context.Context, cancel context.CancelFunc, stream *openai.ChatCompletionStream, chunks chan<- Chunk) {
	start := time.Now()
	defer close(chunks)
	defer cancel()
	defer stream.Close()

	type pendingCall struct {
		id   string
		name string
		args strings.Builder
	}
	pending := make(map[int]*pendingCall)
	maxIndex := -1

	finish := func(streamErr error) {
		outcome := "success"
		if streamErr != nil {
			outcome = "error"
		} else {
			// Emit completed tool calls in index order
			for i := 0; i <= maxIndex; i++ {
				pc, ok := pending[i]
				if !ok || pc.id == "" || pc.name == "" {
					continue
				}
				chunks <- Chunk{
					Type: ChunkTypeToolCall,
					ToolCall: &models.ToolCall{
						ID:        pc.id,
						Name:      pc.name,
						Arguments: json.RawMessage(pc.args.String()),
					},
				}
			}
		}
		if c.metrics != nil {
			c.metrics.RecordLLMCall(outcome, time.Since(start).Seconds())
		}
		chunks <- Chunk{Type: ChunkTypeDone, Err: streamErr}
	}

	for {
		select {
		case <-ctx.Done():
			finish(classifyStreamError(ctx.Err()))
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				finish(nil)
			} else {
				finish(classifyStreamError(err))
			}
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta

		if delta.ReasoningContent != "" {
			chunks <- Chunk{Type: ChunkTypeReasoning, Delta: delta.ReasoningContent}
		}
		if delta.Content != "" {
			chunks <- Chunk{Type: ChunkTypeContent, Delta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if index > maxIndex {
				maxIndex = index
			}
			pc := pending[index]
			if pc == nil {
				pc = &pendingCall{}
				pending[index] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
				// Observational fragment for llm_streaming subscribers
				chunks <- Chunk{Type: ChunkTypeToolCall, Delta: tc.Function.Arguments}
			}
		}
	}
}

// classifyStreamError maps mid-stream failures onto the error taxonomy.
func classifyStreamError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.WrapError(models.KindTimeout, err, "LLM request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return models.WrapError(models.KindCancelled, err, "LLM request cancelled")
	}
	return models.WrapError(models.KindLLMFailed, err, "reading chat completion stream")
}

// isRetryableError reports whether establishing a stream may be retried.
// Rate limits, server errors, and timeouts are transient; auth and
// validation failures are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "timeout", "deadline exceeded", "connection reset", "connection refused", "unexpected eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// convertMessages translates the session history into wire messages.
func convertMessages(messages []models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
		}
		if msg.Role == models.RoleTool {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		result = append(result, oaiMsg)
	}
	return result
}

// convertTools translates tool definitions into function declarations.
// A tool with an unparsable schema degrades to an empty object schema so
// one bad tool cannot break the whole advertisement.
func convertTools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
			slog.Warn("Tool schema is not valid JSON, advertising empty schema", "tool", tool.Name, "error", err)
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

// Describe returns a short endpoint description for health reporting.
func (c *OpenAIClient) Describe() string {
	return fmt.Sprintf("model=%s timeout=%s", c.model, c.timeout)
}
